// Package plots holds the community map domain model: rectangular plots,
// accounts, and the append-only ownership transaction records.
package plots

import "time"

// Plot is a rectangular claimable unit of map space. A plot is never
// physically removed; retiring a map soft-deletes its plots.
type Plot struct {
	ID     string  `json:"id"`
	MapID  string  `json:"map_id"`
	Name   string  `json:"name,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	PlotType string  `json:"plot_type"`
	Price    float64 `json:"price"`

	OwnerID    string `json:"owner_id,omitempty"`
	HouseType  string `json:"house_type,omitempty"`
	HouseColor string `json:"house_color,omitempty"`

	LikesCount int `json:"likes_count"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Rect returns the plot's axis-aligned bounding box in map units.
func (p Plot) Rect() Rect {
	return Rect{X: p.X, Y: p.Y, W: p.Width, H: p.Height}
}

// Owned reports whether the plot currently has an owner.
func (p Plot) Owned() bool { return p.OwnerID != "" }

// Account is the ownership identity, 1:1 with an authenticated user but
// distinct from it. An account owns at most one non-deleted plot.
type Account struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"display_name,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Transaction kinds.
const (
	TxPurchase = "purchase"
	TxSale     = "sale"
	TxTransfer = "transfer"
)

// TransactionRecord is an immutable log entry for an ownership-changing
// event. Records are ordered by creation time, ties broken by Seq.
type TransactionRecord struct {
	Seq             int64     `json:"seq"`
	PlotID          string    `json:"plot_id"`
	Kind            string    `json:"kind"`
	AccountID       string    `json:"account_id,omitempty"`
	PreviousOwnerID string    `json:"previous_owner_id,omitempty"`
	NewOwnerID      string    `json:"new_owner_id,omitempty"`
	Price           float64   `json:"price,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
