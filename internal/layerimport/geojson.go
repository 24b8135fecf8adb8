package layerimport

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Layer names a destination table for imported features.
type Layer string

const (
	LayerConcessions Layer = "concessions"
	LayerLandMask    Layer = "land_mask"
)

func ParseLayer(s string) (Layer, error) {
	switch Layer(strings.TrimSpace(s)) {
	case LayerConcessions:
		return LayerConcessions, nil
	case LayerLandMask:
		return LayerLandMask, nil
	}
	return "", fmt.Errorf("unknown layer %q (want %s or %s)", s, LayerConcessions, LayerLandMask)
}

// Feature is one polygon of a layer with the attributes the tables keep.
// Land mask features only use Name.
type Feature struct {
	Code     int64
	Holder   string
	Kind     *string
	Name     *string
	Region   *string
	Geometry orb.MultiPolygon
}

// Accepted property keys, first match wins.
var (
	codeKeys   = []string{"code", "codigo_centro", "codigo"}
	holderKeys = []string{"holder", "titular"}
	kindKeys   = []string{"kind", "tipo"}
	nameKeys   = []string{"name", "nombre"}
	regionKeys = []string{"region"}
)

func ParseFile(path string, layer Layer) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, layer)
}

// Parse reads a GeoJSON FeatureCollection. Every feature must be a Polygon
// or MultiPolygon; polygons are promoted to MultiPolygon.
func Parse(data []byte, layer Layer) ([]Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	if len(fc.Features) == 0 {
		return nil, errors.New("feature collection has no features")
	}

	seenCodes := map[int64]int{}
	out := make([]Feature, 0, len(fc.Features))

	for i, f := range fc.Features {
		n := i + 1
		mp, err := toMultiPolygon(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", n, err)
		}

		feat := Feature{
			Name:     optString(f.Properties, nameKeys),
			Geometry: mp,
		}

		if layer == LayerConcessions {
			code, ok, err := intProp(f.Properties, codeKeys)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", n, err)
			}
			if !ok {
				return nil, fmt.Errorf("feature %d: code is required", n)
			}
			if prev, dup := seenCodes[code]; dup {
				return nil, fmt.Errorf("feature %d: duplicate code %d (first seen in feature %d)", n, code, prev)
			}
			seenCodes[code] = n

			holder := optString(f.Properties, holderKeys)
			if holder == nil {
				return nil, fmt.Errorf("feature %d: holder is required", n)
			}
			feat.Code = code
			feat.Holder = *holder
			feat.Kind = optString(f.Properties, kindKeys)
			feat.Region = optString(f.Properties, regionKeys)
		}

		out = append(out, feat)
	}

	return out, nil
}

func toMultiPolygon(g orb.Geometry) (orb.MultiPolygon, error) {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return nil, errors.New("empty polygon")
		}
		return orb.MultiPolygon{v}, nil
	case orb.MultiPolygon:
		if len(v) == 0 {
			return nil, errors.New("empty multipolygon")
		}
		return v, nil
	case nil:
		return nil, errors.New("missing geometry")
	default:
		return nil, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
}

func optString(props geojson.Properties, keys []string) *string {
	for _, k := range keys {
		v, ok := props[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = strings.TrimSpace(t)
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			s = strings.TrimSpace(fmt.Sprint(t))
		}
		if s == "" {
			continue
		}
		return &s
	}
	return nil
}

// intProp accepts integral JSON numbers and numeric strings.
func intProp(props geojson.Properties, keys []string) (int64, bool, error) {
	for _, k := range keys {
		v, ok := props[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			if t != math.Trunc(t) {
				return 0, false, fmt.Errorf("%s must be an integer (got %v)", k, t)
			}
			return int64(t), true, nil
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				continue
			}
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return 0, false, fmt.Errorf("%s must be an integer (got %q)", k, t)
			}
			return n, true, nil
		default:
			return 0, false, fmt.Errorf("%s has unsupported type %T", k, v)
		}
	}
	return 0, false, nil
}
