package crossover

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CReSIS/OLD-OPS-sub000/internal/geometry"
)

// Location is a named spatial reference context (arctic, antarctic).
type Location struct {
	ID   int64  `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null;unique" json:"name"`
}

// Season groups the segments flown in one campaign.
type Season struct {
	ID         int64  `gorm:"primaryKey" json:"id"`
	Name       string `gorm:"not null;unique" json:"name"`
	LocationID int64  `gorm:"not null" json:"location_id"`
}

// Segment is one continuous flight line. Its geom is derived from its
// point paths and never written directly.
type Segment struct {
	ID            int64  `gorm:"primaryKey" json:"id"`
	SeasonID      int64  `gorm:"not null" json:"season_id"`
	Name          string `gorm:"not null" json:"name"`
	CrossoverCalc bool   `gorm:"column:crossover_calc;not null" json:"crossover_calc"`
}

// PointPath is one GPS sample on a segment.
type PointPath struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	SegmentID int64     `gorm:"not null" json:"segment_id"`
	GPSTime   float64   `gorm:"column:gps_time;not null" json:"gps_time"`
	Geom      GeomZ4326 `gorm:"column:geom;not null" json:"-"`
	Roll      float64   `json:"roll"`
	Pitch     float64   `json:"pitch"`
	Heading   float64   `json:"heading"`
}

// CrossoverRow is the persisted form of a Crossover.
type CrossoverRow struct {
	ID         int64    `gorm:"primaryKey"`
	PointPath1 int64    `gorm:"column:point_path_1;not null"`
	PointPath2 int64    `gorm:"column:point_path_2;not null"`
	Angle      float64  `gorm:"column:angle;not null"`
	Geom       Geom4326 `gorm:"column:geom;not null"`
}

// Geom4326 is a 2-D lon/lat point written as geometry(Point,4326).
type Geom4326 orb.Point

// GormValue renders the point through PostGIS.
func (g Geom4326) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	return clause.Expr{
		SQL:  "ST_GeomFromText(?, 4326)",
		Vars: []interface{}{geometry.WKT(orb.Point(g))},
	}
}

// GormDataType is the column type used by migrations.
func (Geom4326) GormDataType() string { return "geometry" }

// Scan reads the hex EWKB PostGIS returns for geometry columns, or WKT.
func (g *Geom4326) Scan(v interface{}) error {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return fmt.Errorf("unsupported geometry value %T", v)
	}

	if strings.HasPrefix(strings.ToUpper(s), "POINT") {
		p, err := geometry.ParseWKTPoint(s)
		if err != nil {
			return err
		}
		*g = Geom4326(p)
		return nil
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode ewkb: %w", err)
	}
	geom, _, err := ewkb.Unmarshal(raw)
	if err != nil {
		return fmt.Errorf("decode ewkb: %w", err)
	}
	p, ok := geom.(orb.Point)
	if !ok {
		return fmt.Errorf("expected point, got %s", geom.GeoJSONType())
	}
	*g = Geom4326(p)
	return nil
}

// GeomZ4326 is a lon/lat/elevation point written as geometry(PointZ,4326).
type GeomZ4326 struct {
	Lon, Lat, Elev float64
}

// GormDataType is the column type used by migrations.
func (GeomZ4326) GormDataType() string { return "geometry" }

// Scan reads ST_AsText output ("POINT Z (lon lat elev)").
func (g *GeomZ4326) Scan(v interface{}) error {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return fmt.Errorf("unsupported geometry value %T", v)
	}
	_, err := fmt.Sscanf(s, "POINT Z (%g %g %g)", &g.Lon, &g.Lat, &g.Elev)
	return err
}

// GormValue renders the point through PostGIS.
func (g GeomZ4326) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	return clause.Expr{
		SQL:  "ST_SetSRID(ST_MakePoint(?, ?, ?), 4326)",
		Vars: []interface{}{g.Lon, g.Lat, g.Elev},
	}
}

// PathPoint is one row of a segment's time-ordered samples.
type PathPoint struct {
	Row  int   // 1-based, contiguous
	ID   int64 // point_paths.id
	Lon  float64
	Lat  float64
	Elev float64
}

// Crossover is a detected intersection resolved to real samples.
type Crossover struct {
	PointPath1 int64
	PointPath2 int64
	Angle      float64   // acute, degrees
	Geom       orb.Point // lon/lat, EPSG:4326

	Segment1 int64
	Segment2 int64

	// The samples immediately before and after the intersection on each line.
	Bracket1 [2]int64
	Bracket2 [2]int64
}

// Self reports whether both sides are on the same segment.
func (c Crossover) Self() bool {
	return c.Segment1 == c.Segment2
}

func (c Crossover) row() CrossoverRow {
	return CrossoverRow{
		PointPath1: c.PointPath1,
		PointPath2: c.PointPath2,
		Angle:      c.Angle,
		Geom:       Geom4326(c.Geom),
	}
}
