package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gasledger/backend/services/ingest-service/internal/models"
	"gasledger/backend/services/ingest-service/internal/portal"
	"gasledger/backend/services/ingest-service/internal/repository"
	"gasledger/backend/services/ingest-service/internal/statistics"
)

// PortalClient is the subset of *portal.Client the orchestrator drives.
type PortalClient interface {
	Provider() portal.Provider
	Authenticate(ctx context.Context) (*portal.Session, error)
	FetchUsageHistory(ctx context.Context, sess *portal.Session) ([]portal.Row, error)
	FetchBillingHistory(ctx context.Context, sess *portal.Session) ([]portal.Row, error)
	FetchPaymentHistory(ctx context.Context, sess *portal.Session) ([]portal.Row, error)
	FetchAccountSummary(ctx context.Context, sess *portal.Session) (portal.AccountSummary, error)
}

// Recorder receives per-cycle measurements.
type Recorder interface {
	ObserveCycle(result string, elapsed time.Duration)
	AddPointsEmitted(series string, n int)
	AddRowsSkipped(series string, n int)
}

// MarkerPolicy decides what a failed marker read does to the cycle.
type MarkerPolicy string

const (
	// MarkerFailOpen treats an unreadable marker as "no prior data" and keeps going.
	MarkerFailOpen MarkerPolicy = "fail-open"
	// MarkerFailClosed aborts the cycle.
	MarkerFailClosed MarkerPolicy = "fail-closed"
)

// ParseMarkerPolicy accepts fail-open (also the empty string) and fail-closed.
func ParseMarkerPolicy(raw string) (MarkerPolicy, error) {
	switch MarkerPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MarkerFailOpen:
		return MarkerFailOpen, nil
	case MarkerFailClosed:
		return MarkerFailClosed, nil
	default:
		return "", fmt.Errorf("unknown marker read policy %q", raw)
	}
}

// Options tunes IngestionService.
type Options struct {
	MarkerPolicy  MarkerPolicy
	FetchPayments bool
	Recorder      Recorder
	Now           func() time.Time
}

// SeriesReport describes what one cycle did to one series.
type SeriesReport struct {
	Series   statistics.SeriesID `json:"series"`
	Marker   *time.Time          `json:"marker,omitempty"`
	Emitted  int                 `json:"emitted"`
	Inserted int                 `json:"inserted"`
	Skipped  int                 `json:"skipped"`
	Total    decimal.Decimal     `json:"total"`
	Drift    *decimal.Decimal    `json:"drift,omitempty"`
}

// Report is the result of a successful cycle.
type Report struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Series     []SeriesReport  `json:"series"`
	Snapshot   models.Snapshot `json:"-"`
}

// IngestionService runs fetch, build and append cycles. Refresh is not reentrant;
// callers serialize it.
type IngestionService struct {
	client    PortalClient
	store     repository.StatisticsStore
	snapshots SnapshotCache
	builder   *statistics.Builder
	series    []statistics.Series
	opts      Options
	logger    *zap.Logger
}

// NewIngestionService wires the orchestrator.
func NewIngestionService(client PortalClient, store repository.StatisticsStore, snapshots SnapshotCache, opts Options, logger *zap.Logger) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MarkerPolicy == "" {
		opts.MarkerPolicy = MarkerFailOpen
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if snapshots == nil {
		snapshots = NewMemorySnapshotCache()
	}
	return &IngestionService{
		client:    client,
		store:     store,
		snapshots: snapshots,
		builder:   statistics.NewBuilder(logger),
		series:    statistics.All(),
		opts:      opts,
		logger:    logger.Named("ingestion"),
	}
}

// Latest returns the snapshot of the last successful cycle, or nil.
func (s *IngestionService) Latest(ctx context.Context) (*models.Snapshot, error) {
	return s.snapshots.Latest(ctx)
}

// Refresh runs one full cycle. Any returned error is an *UpdateFailedError.
func (s *IngestionService) Refresh(ctx context.Context) (*Report, error) {
	started := s.opts.Now()
	runID := uuid.NewString()
	logger := s.logger.With(zap.String("run_id", runID))

	report, err := s.refresh(ctx, runID, logger)

	result := "success"
	if err != nil {
		result = "failure"
	}
	s.opts.Recorder.ObserveCycle(result, s.opts.Now().Sub(started))
	if err != nil {
		return nil, err
	}

	report.StartedAt = started.UTC()
	report.FinishedAt = s.opts.Now().UTC()
	fields := []zap.Field{zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt))}
	for _, sr := range report.Series {
		fields = append(fields,
			zap.Int(string(sr.Series)+".emitted", sr.Emitted),
			zap.Int(string(sr.Series)+".skipped", sr.Skipped),
		)
	}
	logger.Info("ingestion cycle complete", fields...)
	return report, nil
}

type plannedWrite struct {
	series statistics.Series
	result statistics.Result
	report SeriesReport
}

func (s *IngestionService) refresh(ctx context.Context, runID string, logger *zap.Logger) (*Report, error) {
	sess, err := s.client.Authenticate(ctx)
	if err != nil {
		return nil, failed(StageAuthenticate, err)
	}

	snapshot := models.Snapshot{
		RunID:    runID,
		Provider: s.client.Provider().Code,
	}
	if snapshot.Usage, err = s.client.FetchUsageHistory(ctx, sess); err != nil {
		return nil, failed(StageFetch, err)
	}
	if snapshot.Billing, err = s.client.FetchBillingHistory(ctx, sess); err != nil {
		return nil, failed(StageFetch, err)
	}
	if snapshot.Account, err = s.client.FetchAccountSummary(ctx, sess); err != nil {
		return nil, failed(StageFetch, err)
	}
	if s.opts.FetchPayments {
		if snapshot.Payments, err = s.client.FetchPaymentHistory(ctx, sess); err != nil {
			return nil, failed(StageFetch, err)
		}
	}
	snapshot.FetchedAt = s.opts.Now().UTC()

	plan := make([]plannedWrite, 0, len(s.series))
	for _, series := range s.series {
		last, err := s.marker(ctx, series.ID, logger)
		if err != nil {
			return nil, err
		}

		result := s.builder.Build(snapshot.Usage, series, last)
		sr := SeriesReport{
			Series:  series.ID,
			Emitted: len(result.Points),
			Skipped: result.Skipped,
			Total:   result.Total,
		}
		if last != nil {
			marker := last.PeriodStart
			sr.Marker = &marker
		}
		if result.Drift != nil {
			delta := result.Drift.Delta()
			sr.Drift = &delta
			logger.Warn("persisted running sum differs from recomputed history",
				zap.String("series", string(series.ID)),
				zap.Time("marker", result.Drift.Marker),
				zap.Stringer("persisted", result.Drift.Persisted),
				zap.Stringer("recomputed", result.Drift.Recomputed),
			)
		}
		plan = append(plan, plannedWrite{series: series, result: result, report: sr})
	}

	report := &Report{RunID: runID, Snapshot: snapshot}
	for _, w := range plan {
		inserted, err := s.store.Append(ctx, w.series, w.result.Points)
		if err != nil {
			return nil, failed(StageWrite, fmt.Errorf("%s: %w", w.series.ID, err))
		}
		w.report.Inserted = inserted
		s.opts.Recorder.AddPointsEmitted(string(w.series.ID), inserted)
		s.opts.Recorder.AddRowsSkipped(string(w.series.ID), w.result.Skipped)
		report.Series = append(report.Series, w.report)
	}

	if err := s.snapshots.Save(ctx, snapshot); err != nil {
		logger.Warn("failed to cache snapshot", zap.Error(err))
	}
	return report, nil
}

func (s *IngestionService) marker(ctx context.Context, id statistics.SeriesID, logger *zap.Logger) (*statistics.Point, error) {
	last, err := s.store.LastPoint(ctx, id)
	if err == nil {
		return last, nil
	}
	if s.opts.MarkerPolicy == MarkerFailClosed {
		return nil, failed(StageMarkers, fmt.Errorf("%s: %w", id, err))
	}
	logger.Warn("marker read failed, treating series as empty",
		zap.String("series", string(id)),
		zap.Error(err),
	)
	return nil, nil
}

type noopRecorder struct{}

func (noopRecorder) ObserveCycle(string, time.Duration) {}
func (noopRecorder) AddPointsEmitted(string, int) {}
func (noopRecorder) AddRowsSkipped(string, int) {}
