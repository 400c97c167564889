package snapshot

// DefaultThreshold is the minimum absolute total-size delta, in bytes,
// for a change to be worth reporting.
const DefaultThreshold int64 = 1024

// Direction classifies a size delta.
type Direction string

const (
	Increase  Direction = "increase"
	Decrease  Direction = "decrease"
	Unchanged Direction = "unchanged"
)

// directionOf returns the direction for a signed byte delta.
func directionOf(delta int64) Direction {
	switch {
	case delta > 0:
		return Increase
	case delta < 0:
		return Decrease
	default:
		return Unchanged
	}
}

// Entry is the per-route comparison between two snapshots. A route present
// in only one snapshot has a zero-valued stat on the missing side.
type Entry struct {
	Route     string
	Current   RouteStat
	Base      RouteStat
	Delta     int64
	Direction Direction
}

// Comparison is the result of diffing a current snapshot against a base.
// Base is nil in current-only mode (no base was available), in which case
// Entries is empty and the totals describe only the current snapshot.
type Comparison struct {
	Current        *Snapshot
	Base           *Snapshot
	Entries        []Entry
	TotalDelta     int64
	TotalDirection Direction
}

// CurrentOnly reports whether there was no base snapshot to compare against.
func (c *Comparison) CurrentOnly() bool {
	return c.Base == nil
}

// Diff compares current against base. The entry order is current's route
// order followed by base-only routes in base order; the ordering carries no
// meaning but is deterministic so repeated runs render identically.
func Diff(current, base *Snapshot) *Comparison {
	if base == nil {
		return &Comparison{Current: current}
	}

	cmp := &Comparison{
		Current:        current,
		Base:           base,
		TotalDelta:     current.TotalSize - base.TotalSize,
		TotalDirection: directionOf(current.TotalSize - base.TotalSize),
	}

	seen := make(map[string]bool, len(current.Routes))
	for _, route := range current.OrderedRoutes() {
		seen[route] = true
		cmp.Entries = append(cmp.Entries, newEntry(route, current.Routes[route], base.Routes[route]))
	}
	for _, route := range base.OrderedRoutes() {
		if seen[route] {
			continue
		}
		cmp.Entries = append(cmp.Entries, newEntry(route, RouteStat{}, base.Routes[route]))
	}

	return cmp
}

func newEntry(route string, current, base RouteStat) Entry {
	delta := current.Size - base.Size
	return Entry{
		Route:     route,
		Current:   current,
		Base:      base,
		Delta:     delta,
		Direction: directionOf(delta),
	}
}

// IsSignificant reports whether the total-size delta between the two
// snapshots exceeds threshold. A nil base is always significant: with
// nothing to compare against, the measurement itself is the news. The
// predicate looks only at grand totals; per-route swings that net out are
// deliberately not significant.
func IsSignificant(current, base *Snapshot, threshold int64) bool {
	if base == nil {
		return true
	}
	delta := current.TotalSize - base.TotalSize
	if delta < 0 {
		delta = -delta
	}
	return delta > threshold
}
