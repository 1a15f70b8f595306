package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gasledger/backend/services/ingest-service/internal/portal"
	"gasledger/backend/services/ingest-service/internal/repository"
	"gasledger/backend/services/ingest-service/internal/statistics"
)

type fakePortal struct {
	usage     []portal.Row
	account   portal.AccountSummary
	authErr   error
	usageErr  error
	billErr   error
	authCalls int
	payments  int
}

func (f *fakePortal) Provider() portal.Provider {
	return portal.Provider{Code: "OH"}
}

func (f *fakePortal) Authenticate(context.Context) (*portal.Session, error) {
	f.authCalls++
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &portal.Session{}, nil
}

func (f *fakePortal) FetchUsageHistory(context.Context, *portal.Session) ([]portal.Row, error) {
	return f.usage, f.usageErr
}

func (f *fakePortal) FetchBillingHistory(context.Context, *portal.Session) ([]portal.Row, error) {
	return []portal.Row{{"Date": "03/01/2025", "Amount": "$50.00"}}, f.billErr
}

func (f *fakePortal) FetchPaymentHistory(context.Context, *portal.Session) ([]portal.Row, error) {
	f.payments++
	return nil, nil
}

func (f *fakePortal) FetchAccountSummary(context.Context, *portal.Session) (portal.AccountSummary, error) {
	return f.account, nil
}

// flakyStore wraps a store and fails selected calls.
type flakyStore struct {
	repository.StatisticsStore
	lastPointErr error
	appendErrFor statistics.SeriesID
}

func (s *flakyStore) LastPoint(ctx context.Context, id statistics.SeriesID) (*statistics.Point, error) {
	if s.lastPointErr != nil {
		return nil, s.lastPointErr
	}
	return s.StatisticsStore.LastPoint(ctx, id)
}

func (s *flakyStore) Append(ctx context.Context, series statistics.Series, points []statistics.Point) (int, error) {
	if series.ID == s.appendErrFor {
		return 0, errors.New("disk full")
	}
	return s.StatisticsStore.Append(ctx, series, points)
}

type countingRecorder struct {
	cycles  map[string]int
	emitted map[string]int
	skipped map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{cycles: map[string]int{}, emitted: map[string]int{}, skipped: map[string]int{}}
}

func (r *countingRecorder) ObserveCycle(result string, _ time.Duration) { r.cycles[result]++ }
func (r *countingRecorder) AddPointsEmitted(series string, n int) { r.emitted[series] += n }
func (r *countingRecorder) AddRowsSkipped(series string, n int) { r.skipped[series] += n }

func usageFeed() []portal.Row {
	return []portal.Row{
		{"Date": "03/01/2025", " Units Used": "10", " Bill Amount": "$50.00"},
		{"Date": "02/01/2025", " Units Used": "8", " Bill Amount": "$40.00"},
	}
}

func TestRefresh_BackfillsBothSeries(t *testing.T) {
	client := &fakePortal{usage: usageFeed()}
	store := repository.NewMemoryStore()
	rec := newCountingRecorder()
	svc := NewIngestionService(client, store, nil, Options{Recorder: rec}, zap.NewNop())

	report, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Series, 2)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Series[0].Inserted)
	assert.Equal(t, 2, report.Series[1].Inserted)

	cost, err := store.LastPoint(context.Background(), statistics.CostID)
	require.NoError(t, err)
	require.NotNil(t, cost)
	assert.True(t, decimal.NewFromInt(90).Equal(cost.Sum))

	consumption, err := store.LastPoint(context.Background(), statistics.ConsumptionID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(18).Equal(consumption.Sum))

	assert.Equal(t, 1, rec.cycles["success"])
	assert.Equal(t, 2, rec.emitted[string(statistics.CostID)])

	latest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, report.RunID, latest.RunID)
	assert.Len(t, latest.Usage, 2)
	assert.Len(t, latest.Billing, 1)
	assert.Zero(t, client.payments)
}

func TestRefresh_SecondRunIsIdempotent(t *testing.T) {
	client := &fakePortal{usage: usageFeed()}
	store := repository.NewMemoryStore()
	svc := NewIngestionService(client, store, nil, Options{}, nil)

	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	report, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	for _, sr := range report.Series {
		assert.Zero(t, sr.Emitted, sr.Series)
		assert.Nil(t, sr.Drift)
		require.NotNil(t, sr.Marker)
	}
	assert.Equal(t, 2, client.authCalls, "each cycle logs in afresh")

	client.usage = append([]portal.Row{{"Date": "04/01/2025", " Units Used": "12", " Bill Amount": "$61.00"}}, usageFeed()...)
	report, err = svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Series[0].Inserted)

	points, err := store.Range(context.Background(), statistics.ConsumptionID, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.True(t, decimal.NewFromInt(30).Equal(points[2].Sum))
}

func TestRefresh_AuthenticationFailure(t *testing.T) {
	client := &fakePortal{authErr: portal.ErrAuthentication}
	store := repository.NewMemoryStore()
	rec := newCountingRecorder()
	svc := NewIngestionService(client, store, nil, Options{Recorder: rec}, nil)

	_, err := svc.Refresh(context.Background())
	require.Error(t, err)

	var updateErr *UpdateFailedError
	require.ErrorAs(t, err, &updateErr)
	assert.Equal(t, StageAuthenticate, updateErr.Stage)
	assert.ErrorIs(t, err, portal.ErrAuthentication)
	assert.Equal(t, 1, rec.cycles["failure"])

	latest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestRefresh_FetchFailureLeavesStateUntouched(t *testing.T) {
	client := &fakePortal{usage: usageFeed()}
	store := repository.NewMemoryStore()
	svc := NewIngestionService(client, store, nil, Options{}, nil)

	first, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	client.billErr = portal.ErrTransport
	client.usage = append([]portal.Row{{"Date": "04/01/2025", " Units Used": "12", " Bill Amount": "$61.00"}}, usageFeed()...)
	_, err = svc.Refresh(context.Background())

	var updateErr *UpdateFailedError
	require.ErrorAs(t, err, &updateErr)
	assert.Equal(t, StageFetch, updateErr.Stage)
	assert.True(t, portal.IsFetchFailure(err))

	latest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.RunID, latest.RunID)

	points, err := store.Range(context.Background(), statistics.ConsumptionID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestRefresh_MarkerReadFailOpen(t *testing.T) {
	client := &fakePortal{usage: usageFeed()}
	store := &flakyStore{StatisticsStore: repository.NewMemoryStore(), lastPointErr: errors.New("connection reset")}
	svc := NewIngestionService(client, store, nil, Options{}, nil)

	report, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Series[0].Emitted)
	assert.Nil(t, report.Series[0].Marker)
}

func TestRefresh_MarkerReadFailClosed(t *testing.T) {
	client := &fakePortal{usage: usageFeed()}
	inner := repository.NewMemoryStore()
	store := &flakyStore{StatisticsStore: inner, lastPointErr: errors.New("connection reset")}
	svc := NewIngestionService(client, store, nil, Options{MarkerPolicy: MarkerFailClosed}, nil)

	_, err := svc.Refresh(context.Background())
	var updateErr *UpdateFailedError
	require.ErrorAs(t, err, &updateErr)
	assert.Equal(t, StageMarkers, updateErr.Stage)

	points, err := inner.Range(context.Background(), statistics.ConsumptionID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestRefresh_WriteFailure(t *testing.T) {
	client := &fakePortal{usage: usageFeed()}
	inner := repository.NewMemoryStore()
	store := &flakyStore{StatisticsStore: inner, appendErrFor: statistics.CostID}
	svc := NewIngestionService(client, store, nil, Options{}, nil)

	_, err := svc.Refresh(context.Background())
	var updateErr *UpdateFailedError
	require.ErrorAs(t, err, &updateErr)
	assert.Equal(t, StageWrite, updateErr.Stage)

	// consumption was written before cost failed; the next run picks up from there
	consumption, err := inner.LastPoint(context.Background(), statistics.ConsumptionID)
	require.NoError(t, err)
	require.NotNil(t, consumption)

	store.appendErrFor = ""
	report, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Series[0].Emitted)
	assert.Equal(t, 2, report.Series[1].Inserted)
}

func TestRefresh_SkippedRowsAndPayments(t *testing.T) {
	client := &fakePortal{usage: append(usageFeed(), portal.Row{"Date": "01/01/2025", " Units Used": "?", " Bill Amount": "$1.00"})}
	rec := newCountingRecorder()
	svc := NewIngestionService(client, repository.NewMemoryStore(), nil, Options{Recorder: rec, FetchPayments: true}, nil)

	report, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Series[0].Skipped)
	assert.Equal(t, 0, report.Series[1].Skipped)
	assert.Equal(t, 1, rec.skipped[string(statistics.ConsumptionID)])
	assert.Equal(t, 1, client.payments)
}

func TestParseMarkerPolicy(t *testing.T) {
	p, err := ParseMarkerPolicy("")
	require.NoError(t, err)
	assert.Equal(t, MarkerFailOpen, p)

	p, err = ParseMarkerPolicy(" Fail-Closed ")
	require.NoError(t, err)
	assert.Equal(t, MarkerFailClosed, p)

	_, err = ParseMarkerPolicy("retry")
	assert.Error(t, err)
}
