package plots

import "math"

// Epsilon for coordinate comparison. Plot geometry originates from a
// floating-point map editor, so raw float equality is unsafe.
const Epsilon = 1e-6

// Rect is an axis-aligned rectangle given by origin and extents.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Left() float64   { return r.X }
func (r Rect) Right() float64  { return r.X + r.W }
func (r Rect) Top() float64    { return r.Y }
func (r Rect) Bottom() float64 { return r.Y + r.H }

func approxEqual(a, b float64) bool { return math.Abs(a-b) <= Epsilon }

// Adjacent reports whether two non-overlapping rectangles share a boundary
// segment of positive length. Corner-only contact does not count; that would
// make diagonal grid neighbors look adjacent.
func Adjacent(a, b Rect) bool {
	vertOverlap := math.Min(a.Bottom(), b.Bottom()) - math.Max(a.Top(), b.Top())
	horizOverlap := math.Min(a.Right(), b.Right()) - math.Max(a.Left(), b.Left())

	if (approxEqual(a.Right(), b.Left()) || approxEqual(b.Right(), a.Left())) && vertOverlap > Epsilon {
		return true
	}
	if (approxEqual(a.Bottom(), b.Top()) || approxEqual(b.Bottom(), a.Top())) && horizOverlap > Epsilon {
		return true
	}
	return false
}

// AdjacentPlots returns every plot in candidates that borders target.
// Deleted plots, plots on other maps, and the target itself are skipped.
// A linear scan is fine at community-map sizes (hundreds of plots).
func AdjacentPlots(target Plot, candidates []Plot) []Plot {
	out := make([]Plot, 0, 4)
	tr := target.Rect()
	for _, c := range candidates {
		if c.ID == target.ID || c.MapID != target.MapID || c.DeletedAt != nil {
			continue
		}
		if Adjacent(tr, c.Rect()) {
			out = append(out, c)
		}
	}
	return out
}
