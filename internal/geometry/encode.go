package geometry

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// WKT renders a geometry as well-known text.
func WKT(g orb.Geometry) string {
	return wkt.MarshalString(g)
}

// ParseWKTPoint reads a POINT from well-known text.
func ParseWKTPoint(s string) (orb.Point, error) {
	return wkt.UnmarshalPoint(s)
}

// GeoJSON renders a geometry as a GeoJSON geometry object.
func GeoJSON(g orb.Geometry) (json.RawMessage, error) {
	return geojson.NewGeometry(g).MarshalJSON()
}
