// Package geometry holds the planar and projection primitives used by crossover
// detection. Everything here is a pure function of its inputs.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Vertex is one coordinate of a TaggedLine. Row is the 1-based row of the
// sample the coordinate came from, or 0 for coordinates introduced by a
// geometry operation.
type Vertex struct {
	Point orb.Point
	Row   int

	// Set only on vertices inserted by UnaryUnion.
	Node int // 1-based id of the self crossing
	Span int // row of the original vertex that starts the edge the node splits
}

// TaggedLine is a polyline whose vertices remember which sample produced them.
type TaggedLine []Vertex

// NewTaggedLine tags points with rows 1..n in the given order.
func NewTaggedLine(points []orb.Point) TaggedLine {
	line := make(TaggedLine, len(points))
	for i, p := range points {
		line[i] = Vertex{Point: p, Row: i + 1}
	}
	return line
}

// UntaggedLine wraps a plain line string; every vertex has Row 0.
func UntaggedLine(ls orb.LineString) TaggedLine {
	line := make(TaggedLine, len(ls))
	for i, p := range ls {
		line[i] = Vertex{Point: p}
	}
	return line
}

// LineString drops the tags.
func (l TaggedLine) LineString() orb.LineString {
	ls := make(orb.LineString, len(l))
	for i, v := range l {
		ls[i] = v.Point
	}
	return ls
}

// Bound is the bounding box of the line.
func (l TaggedLine) Bound() orb.Bound {
	return l.LineString().Bound()
}

// ProjectLine reprojects every vertex, keeping the tags.
func ProjectLine(l TaggedLine, from, to int) (TaggedLine, error) {
	out := make(TaggedLine, len(l))
	for i, v := range l {
		p, err := Project(v.Point, from, to)
		if err != nil {
			return nil, err
		}
		out[i] = v
		out[i].Point = p
	}
	return out, nil
}

// ProjectLineString reprojects a plain line string.
func ProjectLineString(ls orb.LineString, from, to int) (orb.LineString, error) {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		q, err := Project(p, from, to)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

// Azimuth is the bearing from one projected point to another in degrees,
// clockwise from grid north, in [0, 360). Matches PostGIS ST_Azimuth.
func Azimuth(from, to orb.Point) float64 {
	deg := math.Atan2(to[0]-from[0], to[1]-from[1]) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// Length is the planar distance between two projected points.
func Length(a, b orb.Point) float64 {
	return planar.Distance(a, b)
}

// AcuteAngle reduces an angular difference in degrees to [0, 90] by
// reflecting around 180 at most twice.
func AcuteAngle(delta float64) float64 {
	a := math.Mod(math.Abs(delta), 360)
	for i := 0; i < 2 && a > 90; i++ {
		a = math.Abs(180 - a)
	}
	return a
}
