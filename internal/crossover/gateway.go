package crossover

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"gorm.io/gorm"
)

// Gateway is the spatial store the detector reads from.
type Gateway interface {
	// OrderedPoints returns the segment's samples ordered by gps_time, with
	// 1-based contiguous row numbers.
	OrderedPoints(ctx context.Context, segmentID int64) ([]PathPoint, error)

	// IntersectingSegments returns the other segments whose geometry
	// intersects this segment's geometry, in id order.
	IntersectingSegments(ctx context.Context, segmentID int64) ([]int64, error)

	// SegmentLine returns the segment's stored line reprojected to epsg.
	SegmentLine(ctx context.Context, segmentID int64, epsg int) (orb.LineString, error)
}

// PostgisGateway reads one app schema through gorm.
type PostgisGateway struct {
	db      *gorm.DB
	app     string
	timeout time.Duration
}

// NewPostgisGateway scopes a gateway to an app schema. The app must come
// from ResolveApp.
func NewPostgisGateway(db *gorm.DB, app string, timeout time.Duration) *PostgisGateway {
	return &PostgisGateway{db: db, app: app, timeout: timeout}
}

func (g *PostgisGateway) table(name string) string {
	return fmt.Sprintf(`"%s".%s`, g.app, name)
}

func (g *PostgisGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

// storeErr wraps a query failure; an expired deadline is still a store error.
func storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: query timed out: %w", ErrStore, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

func (g *PostgisGateway) requireSegment(ctx context.Context, segmentID int64) error {
	var seg Segment
	err := g.db.WithContext(ctx).Table(g.table("segments")).
		Select("id").
		Where("id = ?", segmentID).
		Take(&seg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: segment %d", ErrNotFound, segmentID)
	}
	if err != nil {
		return storeErr("find segment", err)
	}
	return nil
}

func (g *PostgisGateway) OrderedPoints(ctx context.Context, segmentID int64) ([]PathPoint, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if err := g.requireSegment(ctx, segmentID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT ROW_NUMBER() OVER (ORDER BY gps_time) AS row,
			id,
			ST_X(geom) AS lon,
			ST_Y(geom) AS lat,
			COALESCE(ST_Z(geom), 0) AS elev
		FROM %s
		WHERE segment_id = ?
		ORDER BY gps_time
	`, g.table("point_paths"))

	rows, err := g.db.WithContext(ctx).Raw(query, segmentID).Rows()
	if err != nil {
		return nil, storeErr("ordered points", err)
	}
	defer rows.Close()

	var points []PathPoint
	for rows.Next() {
		var p PathPoint
		if err := rows.Scan(&p.Row, &p.ID, &p.Lon, &p.Lat, &p.Elev); err != nil {
			return nil, storeErr("scan point", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("ordered points", err)
	}
	return points, nil
}

func (g *PostgisGateway) IntersectingSegments(ctx context.Context, segmentID int64) ([]int64, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if err := g.requireSegment(ctx, segmentID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT other.id
		FROM %[1]s AS seg
		JOIN %[1]s AS other
			ON other.id <> seg.id AND ST_Intersects(seg.geom, other.geom)
		WHERE seg.id = ?
		ORDER BY other.id
	`, g.table("segments"))

	var ids []int64
	if err := g.db.WithContext(ctx).Raw(query, segmentID).Scan(&ids).Error; err != nil {
		return nil, storeErr("intersecting segments", err)
	}
	return ids, nil
}

func (g *PostgisGateway) SegmentLine(ctx context.Context, segmentID int64, epsg int) (orb.LineString, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT ST_AsBinary(ST_Transform(geom, ?::integer))
		FROM %s
		WHERE id = ?
	`, g.table("segments"))

	var ls orb.LineString
	err := g.db.WithContext(ctx).Raw(query, epsg, segmentID).Row().Scan(wkb.Scanner(&ls))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: segment %d", ErrNotFound, segmentID)
	}
	if err != nil {
		return nil, storeErr("segment line", err)
	}
	return ls, nil
}

// SegmentLocation returns the location name of the segment's season.
func (g *PostgisGateway) SegmentLocation(ctx context.Context, segmentID int64) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT loc.name
		FROM %s AS seg
		JOIN %s AS sea ON sea.id = seg.season_id
		JOIN %s AS loc ON loc.id = sea.location_id
		WHERE seg.id = ?
	`, g.table("segments"), g.table("seasons"), g.table("locations"))

	var name string
	err := g.db.WithContext(ctx).Raw(query, segmentID).Row().Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: segment %d", ErrNotFound, segmentID)
	}
	if err != nil {
		return "", storeErr("segment location", err)
	}
	return name, nil
}

// FlaggedSegments returns every segment with crossover_calc set.
func (g *PostgisGateway) FlaggedSegments(ctx context.Context) ([]int64, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	var ids []int64
	err := g.db.WithContext(ctx).Table(g.table("segments")).
		Where("crossover_calc").
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, storeErr("flagged segments", err)
	}
	return ids, nil
}
