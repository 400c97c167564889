package snapshot

import "testing"

func snap(total int64, order []string, routes map[string]RouteStat) *Snapshot {
	return &Snapshot{Routes: routes, RouteOrder: order, TotalSize: total}
}

func TestDiff_CurrentOnly(t *testing.T) {
	current := snap(100, []string{"/"}, map[string]RouteStat{"/": {Size: 100, Files: 1}})

	cmp := Diff(current, nil)
	if !cmp.CurrentOnly() {
		t.Fatal("expected current-only mode for nil base")
	}
	if len(cmp.Entries) != 0 {
		t.Errorf("expected no entries, got %d", len(cmp.Entries))
	}
	if cmp.Current != current {
		t.Error("expected comparison to carry the current snapshot")
	}
}

func TestDiff(t *testing.T) {
	current := snap(3000, []string{"/", "/new"}, map[string]RouteStat{
		"/":    {Size: 2000, Files: 2},
		"/new": {Size: 500, Files: 1},
	})
	base := snap(2500, []string{"/", "/gone"}, map[string]RouteStat{
		"/":     {Size: 1500, Files: 2},
		"/gone": {Size: 800, Files: 1},
	})

	cmp := Diff(current, base)
	if cmp.CurrentOnly() {
		t.Fatal("expected comparison mode")
	}

	// Order: current's routes first, then base-only routes.
	wantOrder := []string{"/", "/new", "/gone"}
	if len(cmp.Entries) != len(wantOrder) {
		t.Fatalf("expected %d entries, got %d", len(wantOrder), len(cmp.Entries))
	}
	for i, want := range wantOrder {
		if cmp.Entries[i].Route != want {
			t.Errorf("entry %d: expected route %s, got %s", i, want, cmp.Entries[i].Route)
		}
	}

	byRoute := make(map[string]Entry)
	for _, e := range cmp.Entries {
		byRoute[e.Route] = e
	}

	if e := byRoute["/"]; e.Delta != 500 || e.Direction != Increase {
		t.Errorf("/: expected +500 increase, got %+v", e)
	}
	// Route only in current: zero-valued base side.
	if e := byRoute["/new"]; e.Base != (RouteStat{}) || e.Delta != 500 || e.Direction != Increase {
		t.Errorf("/new: expected zero base and +500, got %+v", e)
	}
	// Route only in base: zero-valued current side.
	if e := byRoute["/gone"]; e.Current != (RouteStat{}) || e.Delta != -800 || e.Direction != Decrease {
		t.Errorf("/gone: expected zero current and -800, got %+v", e)
	}

	if cmp.TotalDelta != 500 || cmp.TotalDirection != Increase {
		t.Errorf("expected total +500 increase, got %d %s", cmp.TotalDelta, cmp.TotalDirection)
	}
}

func TestDiff_SignInverse(t *testing.T) {
	a := snap(3000, []string{"/", "/x"}, map[string]RouteStat{
		"/":  {Size: 2000, Files: 2},
		"/x": {Size: 100, Files: 1},
	})
	b := snap(2400, []string{"/", "/y"}, map[string]RouteStat{
		"/":  {Size: 1500, Files: 2},
		"/y": {Size: 900, Files: 3},
	})

	ab := Diff(a, b)
	ba := Diff(b, a)

	if ab.TotalDelta != -ba.TotalDelta {
		t.Errorf("total deltas not sign-inverse: %d vs %d", ab.TotalDelta, ba.TotalDelta)
	}

	baByRoute := make(map[string]Entry)
	for _, e := range ba.Entries {
		baByRoute[e.Route] = e
	}
	for _, e := range ab.Entries {
		inv, ok := baByRoute[e.Route]
		if !ok {
			t.Fatalf("route %s missing from inverse diff", e.Route)
		}
		if e.Delta != -inv.Delta {
			t.Errorf("route %s: deltas not sign-inverse: %d vs %d", e.Route, e.Delta, inv.Delta)
		}
	}
}

func TestDiff_Unchanged(t *testing.T) {
	a := snap(100, []string{"/"}, map[string]RouteStat{"/": {Size: 100, Files: 1}})
	b := snap(100, []string{"/"}, map[string]RouteStat{"/": {Size: 100, Files: 1}})

	cmp := Diff(a, b)
	if cmp.Entries[0].Direction != Unchanged {
		t.Errorf("expected unchanged, got %s", cmp.Entries[0].Direction)
	}
	if cmp.TotalDirection != Unchanged {
		t.Errorf("expected unchanged total, got %s", cmp.TotalDirection)
	}
}

func TestIsSignificant(t *testing.T) {
	tests := []struct {
		name      string
		current   int64
		base      int64
		threshold int64
		want      bool
	}{
		{name: "equal totals", current: 1000, base: 1000, threshold: 1024, want: false},
		{name: "delta below threshold", current: 1500, base: 1000, threshold: 1024, want: false},
		{name: "delta exactly threshold", current: 2024, base: 1000, threshold: 1024, want: false},
		{name: "delta threshold plus one", current: 2025, base: 1000, threshold: 1024, want: true},
		{name: "negative delta beyond threshold", current: 1000, base: 3000, threshold: 1024, want: true},
		{name: "scenario from workflow", current: 600000, base: 598000, threshold: 1024, want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			current := snap(tc.current, nil, map[string]RouteStat{})
			base := snap(tc.base, nil, map[string]RouteStat{})
			if got := IsSignificant(current, base, tc.threshold); got != tc.want {
				t.Errorf("IsSignificant(%d, %d, %d) = %v, want %v",
					tc.current, tc.base, tc.threshold, got, tc.want)
			}
		})
	}
}

func TestIsSignificant_NilBase(t *testing.T) {
	current := snap(0, nil, map[string]RouteStat{})
	if !IsSignificant(current, nil, DefaultThreshold) {
		t.Error("nil base must always be significant")
	}
}
