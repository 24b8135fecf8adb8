package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/apex/log"
	"github.com/paulmach/orb"

	"github.com/fiscaliza-acuicola/backend/internal/geostore"
)

// Mode selects which concessions the evaluator returns.
type Mode int

const (
	// ModeIntersecting returns only concessions that intersect the buffer.
	// Persisted analyses always use it.
	ModeIntersecting Mode = iota

	// ModeAll returns every concession, keeping intersects=false rows.
	ModeAll
)

func (m Mode) String() string {
	if m == ModeAll {
		return "all"
	}
	return "intersecting"
}

// Evaluator tests concession polygons against a buffer.
type Evaluator struct {
	store  geostore.Store
	cfg    Config
	logger log.Interface
}

func NewEvaluator(store geostore.Store, cfg Config, logger log.Interface) *Evaluator {
	if logger == nil {
		logger = log.Log
	}
	return &Evaluator{store: store, cfg: cfg, logger: logger}
}

// Evaluate returns, per concession, whether it intersects buffer (EPSG:4326)
// and the distance in meters from its centroid to the buffer. Rows are
// ordered by distance, unknown distances last, then by concession id.
func (e *Evaluator) Evaluate(ctx context.Context, buffer orb.Geometry, mode Mode) ([]geostore.ConcessionHit, error) {
	if buffer == nil {
		return nil, fmt.Errorf("%w: buffer geometry is required", ErrInvalidArgument)
	}

	hits, err := e.store.QueryConcessions(ctx, buffer, e.cfg.MetricSRID, mode == ModeIntersecting)
	if err != nil {
		return nil, fmt.Errorf("query concessions: %w", err)
	}

	out := make([]geostore.ConcessionHit, 0, len(hits))
	for _, h := range hits {
		if mode == ModeIntersecting && !h.Intersects {
			continue
		}
		out = append(out, h)
	}

	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].MinDistanceMeters, out[j].MinDistanceMeters
		switch {
		case di == nil && dj == nil:
			return out[i].ConcessionID < out[j].ConcessionID
		case di == nil:
			return false
		case dj == nil:
			return true
		case *di != *dj:
			return *di < *dj
		default:
			return out[i].ConcessionID < out[j].ConcessionID
		}
	})

	e.logger.WithFields(log.Fields{
		"mode":      mode.String(),
		"evaluated": len(hits),
		"returned":  len(out),
	}).Debug("concessions evaluated")

	return out, nil
}
