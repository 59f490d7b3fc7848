package crossover_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/CReSIS/OLD-OPS-sub000/internal/config"
	"github.com/CReSIS/OLD-OPS-sub000/internal/crossover"
	"github.com/CReSIS/OLD-OPS-sub000/internal/db"
)

// testDB is nil when no database is configured.
var testDB *gorm.DB

const testApp = "kuband"

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env.local")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		// No database available, integration tests skip themselves.
		os.Exit(m.Run())
	}

	cfg := config.Default()
	cfg.DatabaseURL = databaseURL
	cfg.SQLLogging = false
	conn, err := db.Open(cfg)
	if err != nil {
		panic(err)
	}
	if err := crossover.Migrate(conn, []string{testApp}); err != nil {
		panic(err)
	}
	testDB = conn

	os.Exit(m.Run())
}

func requireDB(t *testing.T) {
	t.Helper()
	if testDB == nil {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}
}

// ingest stores a segment and removes it, with its points and crossovers,
// when the test ends.
func ingest(t *testing.T, req crossover.IngestRequest) int64 {
	t.Helper()
	id, err := crossover.NewPostgisIngester(testDB, testApp, 10*time.Second).Ingest(context.Background(), req)
	require.NoError(t, err)
	t.Cleanup(func() {
		testDB.Exec(`DELETE FROM "kuband".segments WHERE id = ?`, id)
	})
	return id
}

func line(n int, lon0, lat0, dLon, dLat float64) []crossover.IngestPoint {
	out := make([]crossover.IngestPoint, n)
	for i := range out {
		out[i] = crossover.IngestPoint{
			GPSTime:   1e9 + float64(i),
			Longitude: lon0 + dLon*float64(i),
			Latitude:  lat0 + dLat*float64(i),
			Elevation: 500,
		}
	}
	return out
}

func TestPostgis_DetectAndReplace(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	season := "test_" + uuid.New().String()[:8]
	t.Cleanup(func() {
		testDB.Exec(`DELETE FROM "kuband".seasons WHERE name = ?`, season)
	})

	off := false
	east := crossover.IngestRequest{Season: season, Location: "arctic", Segment: "east", CrossoverCalc: &off,
		Points: line(21, -50.05, 72.0, 0.5, 0)}
	north := crossover.IngestRequest{Season: season, Location: "arctic", Segment: "north", CrossoverCalc: &off,
		Points: line(21, -45.3, 71.03, 0, 0.1)}
	require.NoError(t, east.Validate())
	require.NoError(t, north.Validate())
	eastID := ingest(t, east)
	northID := ingest(t, north)

	gw := crossover.NewPostgisGateway(testDB, testApp, 10*time.Second)
	points, err := gw.OrderedPoints(ctx, eastID)
	require.NoError(t, err)
	require.Len(t, points, 21)
	assert.Equal(t, 1, points[0].Row)
	assert.InDelta(t, -50.05, points[0].Lon, 1e-9)

	ids, err := gw.IntersectingSegments(ctx, eastID)
	require.NoError(t, err)
	assert.Contains(t, ids, northID)

	loc, err := gw.SegmentLocation(ctx, eastID)
	require.NoError(t, err)
	assert.Equal(t, "arctic", loc)

	svc := crossover.NewService(crossover.PostgisBackend{DB: testDB, QueryTimeout: 10 * time.Second}, 1.0, 2)
	first, err := svc.Run(ctx, crossover.DetectRequest{SegmentID: eastID, App: testApp})
	require.NoError(t, err)

	var ours []crossover.Crossover
	for _, c := range first.Crossovers {
		if c.Segment2 == northID {
			ours = append(ours, c)
		}
	}
	require.Len(t, ours, 1)
	assert.InDelta(t, -45.3, ours[0].Geom.Lon(), 0.01)
	assert.InDelta(t, 72.0, ours[0].Geom.Lat(), 0.01)
	assert.GreaterOrEqual(t, ours[0].Angle, 0.0)
	assert.LessOrEqual(t, ours[0].Angle, 90.0)

	// running again from the other segment replaces rather than duplicates
	_, err = svc.Run(ctx, crossover.DetectRequest{SegmentID: northID, App: testApp})
	require.NoError(t, err)

	stored, err := svc.List(ctx, testApp, eastID)
	require.NoError(t, err)
	shared := 0
	for _, c := range stored {
		if c.Segment1 == northID || c.Segment2 == northID {
			shared++
		}
	}
	assert.Equal(t, 1, shared)
}

func TestPostgis_Errors(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	gw := crossover.NewPostgisGateway(testDB, testApp, 10*time.Second)
	_, err := gw.OrderedPoints(ctx, -1)
	assert.ErrorIs(t, err, crossover.ErrNotFound)

	_, err = gw.SegmentLine(ctx, -1, 3413)
	assert.ErrorIs(t, err, crossover.ErrNotFound)

	store := crossover.NewStore(testDB, testApp, 10*time.Second)
	_, err = store.Save(ctx, []crossover.Crossover{{PointPath1: -1, PointPath2: -2, Angle: 10}})
	require.ErrorIs(t, err, crossover.ErrStore)
	assert.Contains(t, err.Error(), "constraint")
}
