package crossover

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Persister writes and reads back a segment's crossovers.
type Persister interface {
	Replace(ctx context.Context, segmentID int64, batch []Crossover) (int, error)
	List(ctx context.Context, segmentID int64) ([]Crossover, error)
}

// Catalog answers segment lookups that are not part of detection.
type Catalog interface {
	SegmentLocation(ctx context.Context, segmentID int64) (string, error)
	FlaggedSegments(ctx context.Context) ([]int64, error)
}

// Ingester stores a new segment with its point paths.
type Ingester interface {
	Ingest(ctx context.Context, req IngestRequest) (int64, error)
}

// Backend hands out store components scoped to an app schema.
type Backend interface {
	Gateway(app string) Gateway
	Catalog(app string) Catalog
	Store(app string) Persister
	Ingester(app string) Ingester
}

// PostgisBackend is the Backend over one gorm connection.
type PostgisBackend struct {
	DB           *gorm.DB
	QueryTimeout time.Duration
}

func (b PostgisBackend) Gateway(app string) Gateway {
	return NewPostgisGateway(b.DB, app, b.QueryTimeout)
}

func (b PostgisBackend) Catalog(app string) Catalog {
	return NewPostgisGateway(b.DB, app, b.QueryTimeout)
}

func (b PostgisBackend) Store(app string) Persister {
	return NewStore(b.DB, app, b.QueryTimeout)
}

func (b PostgisBackend) Ingester(app string) Ingester {
	return NewPostgisIngester(b.DB, app, b.QueryTimeout)
}

// DetectRequest asks for the crossovers of one segment.
type DetectRequest struct {
	SegmentID    int64
	LocationName string // looked up from the segment's season when empty
	App          string
}

// RunResult is the outcome of one detection run.
type RunResult struct {
	RunID      string
	App        string
	SegmentID  int64
	Crossovers []Crossover
	Saved      int
	Shared     bool // joined a run already in flight for the same segment
}

// Service runs detection and persistence. Runs on the same segment never
// overlap: a second request joins the run in flight.
type Service struct {
	backend        Backend
	matchTolerance float64
	concurrency    int

	runs singleflight.Group
}

// NewService builds a Service.
func NewService(backend Backend, matchTolerance float64, concurrency int) *Service {
	return &Service{
		backend:        backend,
		matchTolerance: matchTolerance,
		concurrency:    concurrency,
	}
}

// Run detects and replaces the crossovers of one segment.
func (s *Service) Run(ctx context.Context, req DetectRequest) (RunResult, error) {
	if req.SegmentID <= 0 {
		return RunResult{}, fmt.Errorf("%w: segment id must be positive", ErrInvalidRequest)
	}
	app, err := ResolveApp(req.App)
	if err != nil {
		return RunResult{}, err
	}

	location := req.LocationName
	if location == "" {
		location, err = s.backend.Catalog(app).SegmentLocation(ctx, req.SegmentID)
		if err != nil {
			return RunResult{}, err
		}
	}
	epsg, err := LocationEPSG(location)
	if err != nil {
		return RunResult{}, err
	}

	key := fmt.Sprintf("%s:%d", app, req.SegmentID)
	v, err, shared := s.runs.Do(key, func() (interface{}, error) {
		// A started run finishes or rolls back even if the caller leaves.
		return s.run(context.WithoutCancel(ctx), app, req.SegmentID, epsg)
	})
	if err != nil {
		return RunResult{}, err
	}

	result := v.(RunResult)
	result.Shared = shared
	return result, nil
}

func (s *Service) run(ctx context.Context, app string, segmentID int64, epsg int) (RunResult, error) {
	runID := uuid.New().String()
	start := time.Now()
	logRunStart(runID, app, segmentID, epsg)

	detector := Detector{
		Gateway:        s.backend.Gateway(app),
		MatchTolerance: s.matchTolerance,
		Concurrency:    s.concurrency,
	}
	found, err := detector.Detect(ctx, segmentID, epsg)
	if err != nil {
		logRunError(runID, segmentID, err)
		return RunResult{}, err
	}

	saved, err := s.backend.Store(app).Replace(ctx, segmentID, found)
	if err != nil {
		logRunError(runID, segmentID, err)
		return RunResult{}, err
	}

	logRunDone(runID, segmentID, len(found), saved, time.Since(start))
	return RunResult{
		RunID:      runID,
		App:        app,
		SegmentID:  segmentID,
		Crossovers: found,
		Saved:      saved,
	}, nil
}

// List returns the stored crossovers of a segment.
func (s *Service) List(ctx context.Context, app string, segmentID int64) ([]Crossover, error) {
	app, err := ResolveApp(app)
	if err != nil {
		return nil, err
	}
	return s.backend.Store(app).List(ctx, segmentID)
}

// BatchSummary reports a RunAll pass.
type BatchSummary struct {
	Segments  int
	Succeeded int
	Saved     int
	Failed    map[int64]error
}

// RunAll runs detection for every segment flagged for crossover
// calculation, one at a time. A failing segment does not stop the pass.
func (s *Service) RunAll(ctx context.Context, app string) (BatchSummary, error) {
	app, err := ResolveApp(app)
	if err != nil {
		return BatchSummary{}, err
	}
	ids, err := s.backend.Catalog(app).FlaggedSegments(ctx)
	if err != nil {
		return BatchSummary{}, err
	}

	summary := BatchSummary{Segments: len(ids), Failed: map[int64]error{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := s.Run(ctx, DetectRequest{SegmentID: id, App: app})
		if err != nil {
			summary.Failed[id] = err
			continue
		}
		summary.Succeeded++
		summary.Saved += result.Saved
	}
	return summary, nil
}
