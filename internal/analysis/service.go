package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/fiscaliza-acuicola/backend/internal/geostore"
)

// RunRequest asks for a persisted analysis of one report.
type RunRequest struct {
	ReportID     int64
	RadiusMeters float64
	Method       *string
	Notes        *string
}

// RunResult is a completed, persisted analysis.
type RunResult struct {
	Analysis geostore.Analysis
	Results  []geostore.AnalysisResult
	Hits     []geostore.ConcessionHit
}

// PreviewResult is a computed but unsaved analysis.
type PreviewResult struct {
	ReportID     int64
	RadiusMeters float64
	Buffer       orb.Geometry
	Hits         []geostore.ConcessionHit
}

// AnalysisDetail is a persisted analysis with its stored results.
type AnalysisDetail struct {
	Analysis geostore.Analysis
	Results  []geostore.AnalysisResult
}

// Service runs analyses: buffer the evidence of a report, evaluate the
// concessions against the buffer and, unless previewing, persist both.
type Service struct {
	store  geostore.Store
	cfg    Config
	logger log.Interface
	now    func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithLogger replaces the default apex logger.
func WithLogger(l log.Interface) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now for the execution timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store geostore.Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cfg:    cfg,
		logger: log.Log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes and persists an analysis.
//
// The analysis row is committed before any computation. Buffer, intersection
// and results are then written in one transaction; if that transaction fails
// the row stays behind with a NULL buffer as the record of a failed attempt.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	fields := log.Fields{"report_id": req.ReportID, "radius_m": req.RadiusMeters}

	if err := s.cfg.validateRadius(req.RadiusMeters); err != nil {
		return nil, &StageError{Stage: StageValidate, Err: err}
	}
	if err := s.requireReport(ctx, req.ReportID); err != nil {
		return nil, s.fail(fields, StageLookup, err)
	}

	analysis := geostore.Analysis{
		ID:           uuid.New(),
		ReportID:     req.ReportID,
		ExecutedAt:   s.now().UTC(),
		RadiusMeters: req.RadiusMeters,
		Method:       req.Method,
		Notes:        req.Notes,
	}
	if err := s.store.CreateAnalysis(ctx, &analysis); err != nil {
		return nil, s.fail(fields, StageCreate, err)
	}
	fields["analysis_id"] = analysis.ID.String()

	var (
		buffer  orb.Geometry
		hits    []geostore.ConcessionHit
		results []geostore.AnalysisResult
	)
	err := s.store.WithTx(ctx, func(tx geostore.Store) error {
		if s.cfg.SerializePerReport {
			if err := tx.LockReport(ctx, req.ReportID); err != nil {
				return &StageError{Stage: StageLock, Err: err}
			}
		}

		var err error
		buffer, err = NewBufferBuilder(tx, s.cfg, s.logger).Build(ctx, req.ReportID, req.RadiusMeters)
		if err != nil {
			return &StageError{Stage: StageBuffer, Err: err}
		}
		if err := tx.SetAnalysisBuffer(ctx, analysis.ID, buffer); err != nil {
			return &StageError{Stage: StageStoreBuffer, Err: err}
		}

		hits, err = NewEvaluator(tx, s.cfg, s.logger).Evaluate(ctx, buffer, ModeIntersecting)
		if err != nil {
			return &StageError{Stage: StageEvaluate, Err: err}
		}

		results, err = tx.CreateAnalysisResults(ctx, analysis.ID, hits)
		if err != nil {
			return &StageError{Stage: StagePersistResults, Err: err}
		}
		return nil
	})
	if err != nil {
		stage, ok := StageOf(err)
		if !ok {
			stage = StageCommit
			err = &StageError{Stage: stage, Err: err}
		}
		s.incomplete(fields, stage, err)
		return nil, err
	}

	analysis.Buffer = buffer
	s.logger.WithFields(fields).WithField("concessions", len(results)).Info("analysis completed")

	return &RunResult{Analysis: analysis, Results: results, Hits: hits}, nil
}

// Preview computes buffer and intersections without writing anything.
// Every concession is returned, intersecting or not.
func (s *Service) Preview(ctx context.Context, reportID int64, radiusMeters float64) (*PreviewResult, error) {
	fields := log.Fields{"report_id": reportID, "radius_m": radiusMeters, "preview": true}

	if err := s.cfg.validateRadius(radiusMeters); err != nil {
		return nil, &StageError{Stage: StageValidate, Err: err}
	}
	if err := s.requireReport(ctx, reportID); err != nil {
		return nil, s.fail(fields, StageLookup, err)
	}

	buffer, err := NewBufferBuilder(s.store, s.cfg, s.logger).Build(ctx, reportID, radiusMeters)
	if err != nil {
		return nil, s.fail(fields, StageBuffer, err)
	}
	hits, err := NewEvaluator(s.store, s.cfg, s.logger).Evaluate(ctx, buffer, ModeAll)
	if err != nil {
		return nil, s.fail(fields, StageEvaluate, err)
	}

	return &PreviewResult{
		ReportID:     reportID,
		RadiusMeters: radiusMeters,
		Buffer:       buffer,
		Hits:         hits,
	}, nil
}

// Get returns one persisted analysis with its results.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AnalysisDetail, error) {
	a, err := s.store.GetAnalysis(ctx, id)
	if err != nil {
		return nil, err
	}
	byID, err := s.store.ListAnalysisResults(ctx, []uuid.UUID{a.ID})
	if err != nil {
		return nil, err
	}
	return &AnalysisDetail{Analysis: *a, Results: nonNil(byID[a.ID])}, nil
}

// List returns persisted analyses, newest first, with their results.
func (s *Service) List(ctx context.Context, filter geostore.AnalysisFilter) ([]AnalysisDetail, error) {
	analyses, err := s.store.ListAnalyses(ctx, filter)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(analyses))
	for i, a := range analyses {
		ids[i] = a.ID
	}
	byID, err := s.store.ListAnalysisResults(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]AnalysisDetail, 0, len(analyses))
	for _, a := range analyses {
		out = append(out, AnalysisDetail{Analysis: a, Results: nonNil(byID[a.ID])})
	}
	return out, nil
}

func (s *Service) requireReport(ctx context.Context, reportID int64) error {
	exists, err := s.store.ReportExists(ctx, reportID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("report %d: %w", reportID, ErrReportNotFound)
	}
	return nil
}

// fail wraps err with its stage and logs it. Caller mistakes are logged at
// info, everything else at error with the full context.
func (s *Service) fail(fields log.Fields, stage Stage, err error) error {
	entry := s.logger.WithFields(fields).WithField("stage", string(stage)).WithError(err)
	if isCallerError(err) {
		entry.Info("analysis rejected")
	} else {
		entry.Error("analysis failed")
	}
	return &StageError{Stage: stage, Err: err}
}

// incomplete logs a run whose analysis row was committed but whose buffer and
// results were rolled back.
func (s *Service) incomplete(fields log.Fields, stage Stage, err error) {
	entry := s.logger.WithFields(fields).WithField("stage", string(stage)).WithError(err)
	if isCallerError(err) {
		entry.Warn("analysis left incomplete")
		return
	}
	entry.Error("analysis left incomplete")
}

func nonNil(results []geostore.AnalysisResult) []geostore.AnalysisResult {
	if results == nil {
		return []geostore.AnalysisResult{}
	}
	return results
}
