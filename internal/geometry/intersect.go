package geometry

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy/lineintersection"
	"github.com/twpayne/go-geom/xy/lineintersector"
)

// Tolerance is the distance under which two computed points are the same point.
const Tolerance = 1e-6

// Intersection is one point where two tagged lines meet.
type Intersection struct {
	Point orb.Point

	// Row tag of the vertex starting the edge that contains the point, on
	// each input line. Zero when that line is untagged.
	RowA, RowB int

	// Edge index and position along the edge in [0, 1].
	EdgeA, EdgeB   int
	ParamA, ParamB float64
}

// Intersect returns every point where a and b meet, sorted by x then y.
// Collinear overlaps contribute no points.
func Intersect(a, b TaggedLine) []Intersection {
	if len(a) < 2 || len(b) < 2 {
		return nil
	}
	if !a.Bound().Intersects(b.Bound()) {
		return nil
	}

	bEdges := edgeBounds(b)
	var found []Intersection
	for i := 0; i < len(a)-1; i++ {
		ea := orb.MultiPoint{a[i].Point, a[i+1].Point}.Bound()
		for j := 0; j < len(b)-1; j++ {
			if !ea.Intersects(bEdges[j]) {
				continue
			}
			pt, t, u, ok := SegmentIntersection(a[i].Point, a[i+1].Point, b[j].Point, b[j+1].Point)
			if !ok {
				continue
			}
			found = append(found, Intersection{
				Point:  pt,
				RowA:   a[i].Row,
				RowB:   b[j].Row,
				EdgeA:  i,
				EdgeB:  j,
				ParamA: t,
				ParamB: u,
			})
		}
	}

	found = dedupe(found)
	sort.SliceStable(found, func(i, j int) bool {
		return lessPoint(found[i].Point, found[j].Point)
	})
	return found
}

// SegmentIntersection returns the single point where segments p1-p2 and
// q1-q2 meet and the parameters of that point along each segment. Parallel
// and collinear segments report false. When an endpoint lies on the other
// segment that endpoint is returned exactly.
func SegmentIntersection(p1, p2, q1, q2 orb.Point) (orb.Point, float64, float64, bool) {
	if p1 == p2 || q1 == q2 {
		return orb.Point{}, 0, 0, false
	}

	res := lineintersector.LineIntersectsLine(lineintersector.RobustLineIntersector{},
		coord(p1), coord(p2), coord(q1), coord(q2))
	if res.Type() != lineintersection.PointIntersection {
		return orb.Point{}, 0, 0, false
	}

	c := res.Intersection()[0]
	pt := orb.Point{c[0], c[1]}
	return pt, param(p1, p2, pt), param(q1, q2, pt), true
}

func coord(p orb.Point) geom.Coord {
	return geom.Coord{p[0], p[1]}
}

// param is the position of p along a-b, measured on the longer axis.
func param(a, b, p orb.Point) float64 {
	var t float64
	if dx, dy := math.Abs(b[0]-a[0]), math.Abs(b[1]-a[1]); dx > dy {
		t = (p[0] - a[0]) / (b[0] - a[0])
	} else {
		t = (p[1] - a[1]) / (b[1] - a[1])
	}
	return clamp01(t)
}

func edgeBounds(l TaggedLine) []orb.Bound {
	bounds := make([]orb.Bound, len(l)-1)
	for i := 0; i < len(l)-1; i++ {
		bounds[i] = orb.MultiPoint{l[i].Point, l[i+1].Point}.Bound()
	}
	return bounds
}

// dedupe drops points that repeat an earlier point, which happens when a
// line passes exactly through a vertex shared by two edges.
func dedupe(in []Intersection) []Intersection {
	out := in[:0]
	for _, x := range in {
		dup := false
		for _, y := range out {
			if Length(x.Point, y.Point) <= Tolerance {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, x)
		}
	}
	return out
}

func lessPoint(a, b orb.Point) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
