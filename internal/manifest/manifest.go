package manifest

import (
	"bytes"
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// DefaultFileName is the conventional manifest name emitted by the build tool.
const DefaultFileName = "build-manifest.json"

// routeMapKeys are the accepted top-level keys holding the route map.
// Older builds emit "pages", newer ones "routes"; both describe the same
// mapping and are handled by the same parser.
var routeMapKeys = []string{"pages", "routes"}

// Manifest maps routes to the asset files that make them up, in the order
// the build tool emitted them.
type Manifest struct {
	Routes []RouteAssets
}

// RouteAssets is one route entry with its ordered relative asset paths.
type RouteAssets struct {
	Route  string
	Assets []string
}

// Load reads and parses the manifest file at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a build manifest. The decode is token-level rather than a
// map unmarshal so that route order survives; the differ depends on that
// order for reproducible output. Top-level keys other than the route map
// (polyfill lists, dev files, ...) are skipped.
func Parse(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, fmt.Errorf("manifest root must be a JSON object: %w", err)
	}

	m := &Manifest{}
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return nil, err
		}

		if isRouteMapKey(key) {
			routes, err := parseRouteMap(dec)
			if err != nil {
				return nil, fmt.Errorf("invalid %q entry: %w", key, err)
			}
			m.Routes = append(m.Routes, routes...)
			continue
		}

		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return m, nil
}

func isRouteMapKey(key string) bool {
	for _, k := range routeMapKeys {
		if key == k {
			return true
		}
	}
	return false
}

// parseRouteMap reads an object of route -> [asset, ...] preserving key order.
func parseRouteMap(dec *json.Decoder) ([]RouteAssets, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var routes []RouteAssets
	for dec.More() {
		route, err := stringToken(dec)
		if err != nil {
			return nil, err
		}

		if err := expectDelim(dec, '['); err != nil {
			return nil, fmt.Errorf("route %q: assets must be an array: %w", route, err)
		}

		var assets []string
		for dec.More() {
			asset, err := stringToken(dec)
			if err != nil {
				return nil, fmt.Errorf("route %q: %w", route, err)
			}
			assets = append(assets, asset)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}

		routes = append(routes, RouteAssets{Route: route, Assets: assets})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return routes, nil
}

// skipValue consumes one JSON value of any type.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); ok && (d == '{' || d == '[') {
		for dec.More() {
			if err := skipValue(dec); err != nil {
				return err
			}
		}
		if _, err := dec.Token(); err != nil {
			return err
		}
	}
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %v", tok)
	}
	return s, nil
}
