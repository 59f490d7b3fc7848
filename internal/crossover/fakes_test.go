package crossover

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/CReSIS/OLD-OPS-sub000/internal/geometry"
)

// fakeGateway serves segments built in projected coordinates.
type fakeGateway struct {
	mu       sync.Mutex
	points   map[int64][]PathPoint
	links    map[int64][]int64
	location map[int64]string
	flagged  []int64

	// storeShift moves a segment's stored line, in projected metres.
	storeShift map[int64]orb.Point

	// hook runs at the start of OrderedPoints.
	hook func(ctx context.Context, segmentID int64) error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		points:     map[int64][]PathPoint{},
		links:      map[int64][]int64{},
		location:   map[int64]string{},
		storeShift: map[int64]orb.Point{},
	}
}

// addSegment stores xy (EPSG:3413) as lon/lat samples with ids firstID, firstID+1, ...
func (g *fakeGateway) addSegment(t *testing.T, id int64, firstID int64, xy []orb.Point) {
	t.Helper()
	pts := make([]PathPoint, len(xy))
	for i, p := range xy {
		geo, err := geometry.Project(p, geometry.EPSGNorthPolarStereo, geometry.EPSGWGS84)
		require.NoError(t, err)
		pts[i] = PathPoint{Row: i + 1, ID: firstID + int64(i), Lon: geo.Lon(), Lat: geo.Lat()}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.points[id] = pts
	g.location[id] = "arctic"
}

// link records that two segments intersect in the store.
func (g *fakeGateway) link(a, b int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.links[a] = append(g.links[a], b)
	g.links[b] = append(g.links[b], a)
}

func (g *fakeGateway) OrderedPoints(ctx context.Context, segmentID int64) ([]PathPoint, error) {
	if g.hook != nil {
		if err := g.hook(ctx, segmentID); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	pts, ok := g.points[segmentID]
	if !ok {
		return nil, fmt.Errorf("%w: segment %d", ErrNotFound, segmentID)
	}
	return append([]PathPoint(nil), pts...), nil
}

func (g *fakeGateway) IntersectingSegments(ctx context.Context, segmentID int64) ([]int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.points[segmentID]; !ok {
		return nil, fmt.Errorf("%w: segment %d", ErrNotFound, segmentID)
	}
	ids := append([]int64(nil), g.links[segmentID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (g *fakeGateway) SegmentLine(ctx context.Context, segmentID int64, epsg int) (orb.LineString, error) {
	g.mu.Lock()
	pts, ok := g.points[segmentID]
	shift := g.storeShift[segmentID]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: segment %d", ErrNotFound, segmentID)
	}

	ls := make(orb.LineString, len(pts))
	for i, p := range pts {
		xy, err := geometry.Project(orb.Point{p.Lon, p.Lat}, geometry.EPSGWGS84, epsg)
		if err != nil {
			return nil, err
		}
		ls[i] = orb.Point{xy[0] + shift[0], xy[1] + shift[1]}
	}
	return ls, nil
}

func (g *fakeGateway) SegmentLocation(ctx context.Context, segmentID int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	loc, ok := g.location[segmentID]
	if !ok {
		return "", fmt.Errorf("%w: segment %d", ErrNotFound, segmentID)
	}
	return loc, nil
}

func (g *fakeGateway) FlaggedSegments(ctx context.Context) ([]int64, error) {
	return g.flagged, nil
}

// fakeStore keeps crossovers per segment.
type fakeStore struct {
	mu       sync.Mutex
	bySeg    map[int64][]Crossover
	replaces int
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{bySeg: map[int64][]Crossover{}}
}

func (s *fakeStore) Replace(ctx context.Context, segmentID int64, batch []Crossover) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaces++
	if s.err != nil {
		return 0, s.err
	}
	s.bySeg[segmentID] = append([]Crossover(nil), batch...)
	return len(batch), nil
}

func (s *fakeStore) List(ctx context.Context, segmentID int64) ([]Crossover, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Crossover(nil), s.bySeg[segmentID]...), nil
}

func (s *fakeStore) rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bySeg {
		n += len(b)
	}
	return n
}

// fakeIngester hands out segment ids and records requests.
type fakeIngester struct {
	mu     sync.Mutex
	nextID int64
	got    []IngestRequest
	err    error
}

func (f *fakeIngester) Ingest(ctx context.Context, req IngestRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.got = append(f.got, req)
	return f.nextID, nil
}

// fakeBackend serves the same fakes for every app.
type fakeBackend struct {
	gateway  *fakeGateway
	store    *fakeStore
	ingester *fakeIngester
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		gateway:  newFakeGateway(),
		store:    newFakeStore(),
		ingester: &fakeIngester{},
	}
}

func (b *fakeBackend) Gateway(string) Gateway   { return b.gateway }
func (b *fakeBackend) Catalog(string) Catalog   { return b.gateway }
func (b *fakeBackend) Store(string) Persister   { return b.store }
func (b *fakeBackend) Ingester(string) Ingester { return b.ingester }

// Survey lines near 72N, in EPSG:3413 metres.
const baseY = -2000000.0

// eastLine runs east along y = baseY from x = -5000 in 1 km steps.
func eastLine() []orb.Point {
	out := make([]orb.Point, 11)
	for i := range out {
		out[i] = orb.Point{-5000 + 1000*float64(i), baseY}
	}
	return out
}

// headingLine passes through (x0, baseY) on azimuth az, 0.3 of a step after
// its sixth sample.
func headingLine(x0, az float64) []orb.Point {
	rad := az * math.Pi / 180
	dx, dy := math.Sin(rad), math.Cos(rad)
	out := make([]orb.Point, 11)
	for j := range out {
		s := (float64(j) - 5.3) * 1000
		out[j] = orb.Point{x0 + s*dx, baseY + s*dy}
	}
	return out
}

// figureEight is a Gerono lemniscate of half-width r centred on (0, baseY),
// crossing itself once at the centre.
func figureEight(n int, r float64) (pts []orb.Point, t0, dt float64) {
	t0 = 0.1
	dt = (2*math.Pi - 0.2) / float64(n-1)
	pts = make([]orb.Point, n)
	for k := range pts {
		t := t0 + dt*float64(k)
		pts[k] = orb.Point{r * math.Cos(t), baseY + r*math.Sin(t)*math.Cos(t)}
	}
	return pts, t0, dt
}
