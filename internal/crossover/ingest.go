package crossover

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IngestPoint is one raw GPS sample.
type IngestPoint struct {
	GPSTime   float64 `json:"gps_time"`
	Longitude float64 `json:"lon"`
	Latitude  float64 `json:"lat"`
	Elevation float64 `json:"elev"`
	Roll      float64 `json:"roll"`
	Pitch     float64 `json:"pitch"`
	Heading   float64 `json:"heading"`
}

// IngestRequest creates a segment and its point paths.
type IngestRequest struct {
	App           string        `json:"app"`
	Season        string        `json:"season"`
	Location      string        `json:"location"`
	Segment       string        `json:"segment"`
	CrossoverCalc *bool         `json:"crossover_calc,omitempty"`
	Points        []IngestPoint `json:"points"`
}

// calc reports whether crossovers should be computed; true unless disabled.
func (r IngestRequest) calc() bool {
	return r.CrossoverCalc == nil || *r.CrossoverCalc
}

// Validate checks the request and sorts its points by gps_time.
func (r *IngestRequest) Validate() error {
	r.Season = strings.TrimSpace(r.Season)
	r.Segment = strings.TrimSpace(r.Segment)
	if r.Season == "" || r.Segment == "" {
		return fmt.Errorf("%w: season and segment are required", ErrInvalidRequest)
	}
	if _, err := LocationEPSG(r.Location); err != nil {
		return err
	}
	r.Location = foldName(r.Location)

	if len(r.Points) < 2 {
		return fmt.Errorf("%w: a segment needs at least 2 points, got %d", ErrInvalidRequest, len(r.Points))
	}
	for i, p := range r.Points {
		if math.IsNaN(p.GPSTime) || p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
			return fmt.Errorf("%w: point %d has invalid coordinates or time", ErrInvalidRequest, i)
		}
	}

	sort.SliceStable(r.Points, func(i, j int) bool { return r.Points[i].GPSTime < r.Points[j].GPSTime })
	for i := 1; i < len(r.Points); i++ {
		if r.Points[i].GPSTime == r.Points[i-1].GPSTime {
			return fmt.Errorf("%w: duplicate gps_time %v", ErrInvalidRequest, r.Points[i].GPSTime)
		}
	}
	return nil
}

// PostgisIngester writes segments into one app schema.
type PostgisIngester struct {
	db      *gorm.DB
	app     string
	timeout time.Duration
}

// NewPostgisIngester scopes an ingester to an app schema. The app must come
// from ResolveApp.
func NewPostgisIngester(db *gorm.DB, app string, timeout time.Duration) *PostgisIngester {
	return &PostgisIngester{db: db, app: app, timeout: timeout}
}

func (g *PostgisIngester) table(name string) string {
	return fmt.Sprintf(`"%s".%s`, g.app, name)
}

// Ingest stores a validated request in one transaction and derives the
// segment line from its points.
func (g *PostgisIngester) Ingest(ctx context.Context, req IngestRequest) (int64, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var segmentID int64
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var loc Location
		if err := tx.Table(g.table("locations")).Where("name = ?", req.Location).Take(&loc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %q is not seeded", ErrUnsupportedLocation, req.Location)
			}
			return err
		}

		season := Season{Name: req.Season, LocationID: loc.ID}
		if err := tx.Table(g.table("seasons")).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&season).Error; err != nil {
			return err
		}
		season = Season{}
		if err := tx.Table(g.table("seasons")).Where("name = ?", req.Season).Take(&season).Error; err != nil {
			return err
		}
		if season.LocationID != loc.ID {
			return fmt.Errorf("%w: season %q belongs to another location", ErrInvalidRequest, req.Season)
		}

		var existing int64
		if err := tx.Table(g.table("segments")).
			Where("season_id = ? AND name = ?", season.ID, req.Segment).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("%w: segment %q already exists in season %q", ErrInvalidRequest, req.Segment, req.Season)
		}

		seg := Segment{SeasonID: season.ID, Name: req.Segment, CrossoverCalc: req.calc()}
		if err := tx.Table(g.table("segments")).Create(&seg).Error; err != nil {
			return err
		}
		segmentID = seg.ID

		points := make([]PointPath, len(req.Points))
		for i, p := range req.Points {
			points[i] = PointPath{
				SegmentID: seg.ID,
				GPSTime:   p.GPSTime,
				Geom:      GeomZ4326{Lon: p.Longitude, Lat: p.Latitude, Elev: p.Elevation},
				Roll:      p.Roll,
				Pitch:     p.Pitch,
				Heading:   p.Heading,
			}
		}
		if err := tx.Table(g.table("point_paths")).CreateInBatches(points, insertBatchSize).Error; err != nil {
			return err
		}

		return tx.Exec(fmt.Sprintf(`
			UPDATE %[1]s SET geom = (
				SELECT ST_Force2D(ST_MakeLine(geom ORDER BY gps_time))
				FROM %[2]s
				WHERE segment_id = ?
			)
			WHERE id = ?
		`, g.table("segments"), g.table("point_paths")), seg.ID, seg.ID).Error
	})
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrUnsupportedLocation) {
			return 0, err
		}
		return 0, persistErr("ingest segment", err)
	}
	return segmentID, nil
}

// IngestResult reports an ingest and the detection run that followed it.
type IngestResult struct {
	App       string
	SegmentID int64
	Points    int
	Run       *RunResult
}

// Ingest stores a segment and, when it is flagged, detects its crossovers.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	app, err := ResolveApp(req.App)
	if err != nil {
		return IngestResult{}, err
	}
	req.App = app
	if err := req.Validate(); err != nil {
		return IngestResult{}, err
	}

	start := time.Now()
	segmentID, err := s.backend.Ingester(app).Ingest(ctx, req)
	if err != nil {
		return IngestResult{}, err
	}
	logIngest(app, segmentID, len(req.Points), time.Since(start))

	result := IngestResult{App: app, SegmentID: segmentID, Points: len(req.Points)}
	if !req.calc() {
		return result, nil
	}

	run, err := s.Run(ctx, DetectRequest{SegmentID: segmentID, LocationName: req.Location, App: app})
	if err != nil {
		return result, fmt.Errorf("segment %d stored, crossover detection failed: %w", segmentID, err)
	}
	result.Run = &run
	return result, nil
}
