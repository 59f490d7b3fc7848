package crossover

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crossingBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := newFakeBackend()
	b.gateway.addSegment(t, 1, 101, eastLine())
	b.gateway.addSegment(t, 2, 201, headingLine(250, 30))
	b.gateway.link(1, 2)
	return b
}

func TestService_RunPersists(t *testing.T) {
	b := crossingBackend(t)
	svc := NewService(b, DefaultMatchTolerance, 2)

	result, err := svc.Run(context.Background(), DetectRequest{SegmentID: 1, LocationName: "Arctic"})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, DefaultApp, result.App)
	assert.Equal(t, 1, result.Saved)
	require.Len(t, result.Crossovers, 1)

	stored, err := svc.List(context.Background(), "", 1)
	require.NoError(t, err)
	assert.Equal(t, result.Crossovers, stored)
}

func TestService_RunLooksUpLocation(t *testing.T) {
	b := crossingBackend(t)
	svc := NewService(b, DefaultMatchTolerance, 1)

	result, err := svc.Run(context.Background(), DetectRequest{SegmentID: 2, App: "snow"})
	require.NoError(t, err)
	assert.Equal(t, "snow", result.App)
	assert.Len(t, result.Crossovers, 1)

	_, err = svc.Run(context.Background(), DetectRequest{SegmentID: 42})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_RunRejectsBadRequests(t *testing.T) {
	b := crossingBackend(t)
	svc := NewService(b, DefaultMatchTolerance, 1)
	ctx := context.Background()

	_, err := svc.Run(ctx, DetectRequest{SegmentID: 1, LocationName: "moon"})
	assert.ErrorIs(t, err, ErrUnsupportedLocation)

	_, err = svc.Run(ctx, DetectRequest{SegmentID: 1, LocationName: "arctic", App: "radar; drop"})
	assert.ErrorIs(t, err, ErrUnsupportedApp)

	_, err = svc.Run(ctx, DetectRequest{SegmentID: 0, LocationName: "arctic"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Zero(t, b.store.replaces)
}

func TestService_ConsistencyFaultPersistsNothing(t *testing.T) {
	b := crossingBackend(t)
	b.store.bySeg[1] = []Crossover{{PointPath1: 101, PointPath2: 201, Angle: 10}}
	b.gateway.storeShift[1] = [2]float64{0, 50000}
	svc := NewService(b, DefaultMatchTolerance, 1)

	_, err := svc.Run(context.Background(), DetectRequest{SegmentID: 1, LocationName: "arctic"})
	require.ErrorIs(t, err, ErrConsistency)

	assert.Zero(t, b.store.replaces)
	// the previous result is untouched
	assert.Equal(t, 1, b.store.rows())
}

func TestService_StoreFailure(t *testing.T) {
	b := crossingBackend(t)
	b.store.err = ErrStore
	svc := NewService(b, DefaultMatchTolerance, 1)

	_, err := svc.Run(context.Background(), DetectRequest{SegmentID: 1, LocationName: "arctic"})
	assert.ErrorIs(t, err, ErrStore)
}

func TestService_RunIsIdempotent(t *testing.T) {
	b := crossingBackend(t)
	svc := NewService(b, DefaultMatchTolerance, 1)
	ctx := context.Background()

	first, err := svc.Run(ctx, DetectRequest{SegmentID: 1, LocationName: "arctic"})
	require.NoError(t, err)
	second, err := svc.Run(ctx, DetectRequest{SegmentID: 1, LocationName: "arctic"})
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Crossovers, second.Crossovers)
	assert.Equal(t, 1, b.store.rows())
}

func TestService_RunsOnOneSegmentNeverOverlap(t *testing.T) {
	b := crossingBackend(t)

	var active, maxActive int32
	b.gateway.hook = func(ctx context.Context, segmentID int64) error {
		if segmentID != 1 {
			return nil
		}
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return nil
	}
	svc := NewService(b, DefaultMatchTolerance, 1)

	var wg sync.WaitGroup
	results := make([]RunResult, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Run(context.Background(), DetectRequest{SegmentID: 1, LocationName: "arctic"})
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Len(t, results[i].Crossovers, 1)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	assert.Equal(t, 1, b.store.rows())
}

func TestService_StartedRunIgnoresCallerCancel(t *testing.T) {
	b := crossingBackend(t)
	svc := NewService(b, DefaultMatchTolerance, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Run(ctx, DetectRequest{SegmentID: 1, LocationName: "arctic"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Saved)
}

func TestService_RunAll(t *testing.T) {
	b := crossingBackend(t)
	b.gateway.flagged = []int64{1, 2, 3}
	svc := NewService(b, DefaultMatchTolerance, 1)

	summary, err := svc.RunAll(context.Background(), "rds")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Segments)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Saved)
	require.Contains(t, summary.Failed, int64(3))
	assert.ErrorIs(t, summary.Failed[3], ErrNotFound)
}

func ingestPoints(n int) []IngestPoint {
	out := make([]IngestPoint, n)
	for i := range out {
		out[i] = IngestPoint{GPSTime: float64(n - i), Longitude: -45, Latitude: 72 + float64(i)*0.01}
	}
	return out
}

func TestService_IngestValidates(t *testing.T) {
	b := crossingBackend(t)
	svc := NewService(b, DefaultMatchTolerance, 1)
	ctx := context.Background()

	base := IngestRequest{Season: "2019_Greenland_P3", Segment: "20190501_01", Location: "arctic"}

	req := base
	req.Points = ingestPoints(1)
	_, err := svc.Ingest(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req = base
	req.Points = ingestPoints(3)
	req.Points[2].GPSTime = req.Points[0].GPSTime
	_, err = svc.Ingest(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req = base
	req.Location = "equator"
	req.Points = ingestPoints(3)
	_, err = svc.Ingest(ctx, req)
	assert.ErrorIs(t, err, ErrUnsupportedLocation)

	req = base
	req.Season = "  "
	req.Points = ingestPoints(3)
	_, err = svc.Ingest(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Empty(t, b.ingester.got)
}

func TestService_IngestThenDetect(t *testing.T) {
	b := crossingBackend(t)
	b.ingester.nextID = 2
	svc := NewService(b, DefaultMatchTolerance, 1)

	result, err := svc.Ingest(context.Background(), IngestRequest{
		Season:   "2019_Greenland_P3",
		Segment:  "20190501_01",
		Location: " ARCTIC ",
		Points:   ingestPoints(4),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.SegmentID)
	assert.Equal(t, 4, result.Points)
	require.NotNil(t, result.Run)
	assert.Len(t, result.Run.Crossovers, 1)

	require.Len(t, b.ingester.got, 1)
	got := b.ingester.got[0]
	assert.Equal(t, "arctic", got.Location)
	assert.Equal(t, DefaultApp, got.App)
	for i := 1; i < len(got.Points); i++ {
		assert.Less(t, got.Points[i-1].GPSTime, got.Points[i].GPSTime)
	}
}

func TestService_IngestWithoutDetection(t *testing.T) {
	b := crossingBackend(t)
	b.ingester.nextID = 2
	svc := NewService(b, DefaultMatchTolerance, 1)

	off := false
	result, err := svc.Ingest(context.Background(), IngestRequest{
		Season:        "2019_Greenland_P3",
		Segment:       "20190501_01",
		Location:      "arctic",
		CrossoverCalc: &off,
		Points:        ingestPoints(2),
	})
	require.NoError(t, err)
	assert.Nil(t, result.Run)
	assert.Zero(t, b.store.replaces)
}
