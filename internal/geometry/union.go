package geometry

import (
	"sort"

	"github.com/paulmach/orb"
)

type visit struct {
	node  int
	edge  int
	param float64
}

// UnaryUnion dissolves a self-crossing line into simple pieces by splitting
// it at every place it crosses itself. A line with no self crossings comes
// back as a single piece.
//
// Each crossing is passed twice along the line, so it ends two pieces. The
// split vertex is shared by the piece it ends and the piece it starts, has
// Row 0, and carries the crossing id in Node and the row of the split edge's
// first vertex in Span.
func UnaryUnion(l TaggedLine) []TaggedLine {
	if len(l) < 4 {
		return []TaggedLine{append(TaggedLine(nil), l...)}
	}

	var visits []visit
	var nodes []orb.Point
	node := 0
	for i := 0; i < len(l)-1; i++ {
		for j := i + 2; j < len(l)-1; j++ {
			pt, t, u, ok := SegmentIntersection(l[i].Point, l[i+1].Point, l[j].Point, l[j+1].Point)
			if !ok || t >= 1 || u >= 1 {
				continue
			}
			if i == 0 && t == 0 {
				continue // the line starts on a later edge, nothing crosses
			}
			if Length(pt, l[len(l)-1].Point) <= Tolerance && j == len(l)-2 {
				continue
			}
			if nearAny(pt, nodes) {
				continue // a crossing through a vertex is found on both edges sharing it
			}
			nodes = append(nodes, pt)
			node++
			visits = append(visits,
				visit{node: node, edge: i, param: t},
				visit{node: node, edge: j, param: u},
			)
		}
	}
	if node == 0 {
		return []TaggedLine{append(TaggedLine(nil), l...)}
	}

	sort.SliceStable(visits, func(a, b int) bool {
		if visits[a].edge != visits[b].edge {
			return visits[a].edge < visits[b].edge
		}
		return visits[a].param < visits[b].param
	})

	byEdge := make(map[int][]visit, len(visits))
	for _, v := range visits {
		byEdge[v.edge] = append(byEdge[v.edge], v)
	}

	pieces := make([]TaggedLine, 0, len(visits)+1)
	current := TaggedLine{l[0]}
	for e := 0; e < len(l)-1; e++ {
		a, b := l[e].Point, l[e+1].Point
		for _, v := range byEdge[e] {
			split := Vertex{
				Row:  0,
				Node: v.node,
				Span: l[e].Row,
			}
			split.Point[0] = a[0] + v.param*(b[0]-a[0])
			split.Point[1] = a[1] + v.param*(b[1]-a[1])

			current = append(current, split)
			pieces = append(pieces, current)
			current = TaggedLine{split}
		}
		current = append(current, l[e+1])
	}
	pieces = append(pieces, current)

	return pieces
}

func nearAny(p orb.Point, nodes []orb.Point) bool {
	for _, n := range nodes {
		if Length(p, n) <= Tolerance {
			return true
		}
	}
	return false
}
