package snapshot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/schaermu/bundlewatchd/internal/manifest"
	"github.com/schaermu/bundlewatchd/internal/sizes"
)

// ErrNotBuilt reports that no usable build output exists at the analyzed
// location. It is a distinguished absence: callers degrade to "nothing to
// compare" instead of failing, except when the current snapshot itself is
// missing.
var ErrNotBuilt = errors.New("build output not found")

// RouteStat holds the measured size of one route. Files counts assets that
// were actually found on disk, not assets the manifest lists.
type RouteStat struct {
	Size  int64 `json:"size"`
	Files int   `json:"files"`
}

// Snapshot is a point-in-time measurement of bundle sizes across all
// routes plus a grand total. It is immutable once produced.
//
// TotalSize is the aggregate size of the static-asset directory and is
// computed independently of the per-route sums: shared chunks may
// contribute to several routes but are counted once in the total. The two
// figures legitimately diverge.
type Snapshot struct {
	Routes     map[string]RouteStat `json:"routes"`
	RouteOrder []string             `json:"route_order"`
	TotalSize  int64                `json:"total_size"`
	CreatedAt  time.Time            `json:"created_at"`
}

// OrderedRoutes returns the snapshot's route keys in manifest order.
// Records persisted by older versions carry no order list; those fall back
// to sorted keys so output stays deterministic.
func (s *Snapshot) OrderedRoutes() []string {
	if len(s.RouteOrder) == len(s.Routes) {
		return s.RouteOrder
	}
	keys := make([]string, 0, len(s.Routes))
	for key := range s.Routes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Marshal serializes the snapshot for persistence in a record store.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Unmarshal deserializes a persisted snapshot record.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Routes == nil {
		s.Routes = make(map[string]RouteStat)
	}
	return &s, nil
}

// Analyzer measures a build output directory into a Snapshot.
type Analyzer struct {
	manifestName string
	staticSubdir string
	logger       *slog.Logger
}

// NewAnalyzer creates an analyzer. manifestName and staticSubdir are
// relative to the build output root passed to Analyze.
func NewAnalyzer(manifestName, staticSubdir string, logger *slog.Logger) *Analyzer {
	if manifestName == "" {
		manifestName = manifest.DefaultFileName
	}
	return &Analyzer{
		manifestName: manifestName,
		staticSubdir: staticSubdir,
		logger:       logger,
	}
}

// Analyze produces a snapshot of the build output rooted at buildRoot.
// A missing or unparsable manifest yields ErrNotBuilt.
func (a *Analyzer) Analyze(buildRoot string) (*Snapshot, error) {
	manifestPath := filepath.Join(buildRoot, a.manifestName)

	m, err := manifest.Load(manifestPath)
	if err != nil {
		a.logger.Debug("manifest unavailable", "path", manifestPath, "error", err)
		return nil, fmt.Errorf("%w: %s", ErrNotBuilt, manifestPath)
	}

	a.logger.Info("analyzing build output", "root", buildRoot, "routes", len(m.Routes))

	if len(m.Routes) == 0 {
		// Usually a degenerate build; still a valid, empty snapshot.
		a.logger.Warn("manifest contains no routes", "path", manifestPath)
	}

	snap := &Snapshot{
		Routes:     make(map[string]RouteStat, len(m.Routes)),
		RouteOrder: make([]string, 0, len(m.Routes)),
	}

	for _, entry := range m.Routes {
		var stat RouteStat
		for _, asset := range entry.Assets {
			assetPath := filepath.Join(buildRoot, filepath.FromSlash(asset))
			size, found := sizes.FileSize(assetPath)
			if !found {
				// Manifests routinely list assets the bundler pruned.
				a.logger.Debug("asset listed in manifest but not on disk",
					"route", entry.Route, "asset", asset)
				continue
			}
			stat.Size += size
			stat.Files++
		}
		// A route with no resolvable assets stays in the snapshot; its
		// presence means "route exists but nothing materialized".
		snap.Routes[entry.Route] = stat
		snap.RouteOrder = append(snap.RouteOrder, entry.Route)
	}

	total, err := sizes.Aggregate(filepath.Join(buildRoot, a.staticSubdir))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate static assets: %w", err)
	}
	snap.TotalSize = total
	snap.CreatedAt = time.Now().UTC()

	a.logger.Info("analysis complete",
		"routes", len(snap.Routes),
		"total_size", snap.TotalSize)

	return snap, nil
}

// IsBuilt reports whether a manifest exists at buildRoot without parsing it.
func (a *Analyzer) IsBuilt(buildRoot string) bool {
	_, err := os.Stat(filepath.Join(buildRoot, a.manifestName))
	return err == nil
}
