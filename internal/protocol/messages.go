package protocol

import (
	"time"

	"neighborhood.land/internal/plots"
)

// WELCOME (server -> client) is the first frame on a live feed
// connection. Catalog digests let clients skip refetching catalogs they
// already hold.
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	ActiveMapID     string         `json:"active_map_id,omitempty"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type CatalogDigests struct {
	HouseTypes  DigestRef `json:"house_types"`
	HouseColors DigestRef `json:"house_colors"`
	PlotTypes   DigestRef `json:"plot_types"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// PLOT_EVENT (server -> client) announces a committed plot change. The
// feed is cosmetic; clients re-read the API for authoritative state.
type PlotEventMsg struct {
	Type string     `json:"type"`
	Kind string     `json:"kind"` // "purchase", "sale", "update", "like"
	Plot plots.Plot `json:"plot"`
	At   time.Time  `json:"at"`
}

// ERROR (server -> client).
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// APIResponse is the REST envelope. Success responses carry Data;
// failures carry Code and Error.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PurchaseRequest is the body of POST /v1/plots/purchase.
type PurchaseRequest struct {
	PlotID     string `json:"plot_id"`
	HouseType  string `json:"house_type,omitempty"`
	HouseColor string `json:"house_color,omitempty"`
}

// DecorationRequest is the body of PATCH /v1/plots/{id}.
type DecorationRequest struct {
	HouseType  string `json:"house_type,omitempty"`
	HouseColor string `json:"house_color,omitempty"`
}

// RegisterRequest is the body of POST /v1/accounts.
type RegisterRequest struct {
	DisplayName string `json:"display_name,omitempty"`
}
