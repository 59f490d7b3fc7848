package crossover

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeom4326_Scan(t *testing.T) {
	raw, err := ewkb.Marshal(orb.Point{-45.5, 71.25}, 4326)
	require.NoError(t, err)

	var g Geom4326
	require.NoError(t, g.Scan(hex.EncodeToString(raw)))
	assert.Equal(t, orb.Point{-45.5, 71.25}, orb.Point(g))

	require.NoError(t, g.Scan([]byte("POINT(10 -75)")))
	assert.Equal(t, orb.Point{10, -75}, orb.Point(g))

	line, err := ewkb.Marshal(orb.LineString{{0, 0}, {1, 1}}, 4326)
	require.NoError(t, err)
	assert.Error(t, g.Scan(hex.EncodeToString(line)))
	assert.Error(t, g.Scan(42))
}

func TestGeomZ4326_Scan(t *testing.T) {
	var g GeomZ4326
	require.NoError(t, g.Scan("POINT Z (-45.5 71.25 1200)"))
	assert.Equal(t, GeomZ4326{Lon: -45.5, Lat: 71.25, Elev: 1200}, g)
}

func TestGormValue(t *testing.T) {
	expr := Geom4326{-45.5, 71.25}.GormValue(context.Background(), nil)
	assert.Equal(t, "ST_GeomFromText(?, 4326)", expr.SQL)
	assert.Equal(t, []interface{}{"POINT(-45.5 71.25)"}, expr.Vars)

	expr = GeomZ4326{Lon: 1, Lat: 2, Elev: 3}.GormValue(context.Background(), nil)
	assert.Equal(t, []interface{}{1.0, 2.0, 3.0}, expr.Vars)
}

func TestCrossoverRow(t *testing.T) {
	c := Crossover{PointPath1: 1, PointPath2: 2, Angle: 33, Geom: orb.Point{3, 4}, Segment1: 9, Segment2: 9}
	assert.True(t, c.Self())
	assert.Equal(t, CrossoverRow{PointPath1: 1, PointPath2: 2, Angle: 33, Geom: Geom4326{3, 4}}, c.row())
}
