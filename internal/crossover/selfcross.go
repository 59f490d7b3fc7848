package crossover

import (
	"fmt"
	"log"

	"github.com/paulmach/orb"

	"github.com/CReSIS/OLD-OPS-sub000/internal/geometry"
)

// pass is one traversal of a self crossing: the piece it ends and the
// samples found on either side of it.
type pass struct {
	piece         int
	before, after int // rows
}

func (d *Detector) selfIntersections(own segmentLine, epsg int) ([]Crossover, error) {
	pieces := geometry.UnaryUnion(own.projected)
	if len(pieces) <= 1 {
		return nil, nil
	}

	// Every boundary between consecutive pieces is a visit to a crossing;
	// the first visit of a node is the first pass.
	var order []int
	passes := make(map[int][]pass)
	points := make(map[int]orb.Point)
	for p := 0; p < len(pieces)-1; p++ {
		end := pieces[p][len(pieces[p])-1]
		if end.Node == 0 {
			return nil, fmt.Errorf("%w: segment %d piece %d does not end at a crossing", ErrConsistency, own.id, p)
		}

		before, err := own.walk(pieces[p], len(pieces[p])-1, -1, end.Span)
		if err != nil {
			return nil, err
		}
		after, err := own.walk(pieces[p+1], 0, 1, end.Span+1)
		if err != nil {
			return nil, err
		}

		if _, seen := passes[end.Node]; !seen {
			order = append(order, end.Node)
			points[end.Node] = end.Point
		}
		passes[end.Node] = append(passes[end.Node], pass{piece: p, before: before, after: after})
	}

	var out []Crossover
	for _, node := range order {
		visits := passes[node]
		if len(visits) != 2 {
			return nil, fmt.Errorf("%w: segment %d crossing %d visited %d times", ErrConsistency, own.id, node, len(visits))
		}

		x := points[node]
		first, second := own.passBracket(visits[0]), own.passBracket(visits[1])

		// Each point path is the sample nearest the crossing on its own pass.
		// The second one is not the forward neighbour of the first.
		pp1, pp2 := first.nearest(x), second.nearest(x)
		if pp1 == pp2 {
			pp2 = second.other(pp2)
		}
		if pp1 == pp2 {
			log.Printf("[crossover] segment %d: self crossing %d resolves to a single point path %d, skipped", own.id, node, pp1)
			continue
		}

		geo, err := geometry.Project(x, epsg, geometry.EPSGWGS84)
		if err != nil {
			return nil, err
		}

		delta := first.bearingForward(x) - second.bearingForward(x)
		out = append(out, Crossover{
			PointPath1: pp1,
			PointPath2: pp2,
			Angle:      geometry.AcuteAngle(delta),
			Geom:       geo,
			Segment1:   own.id,
			Segment2:   own.id,
			Bracket1:   first.ids(),
			Bracket2:   second.ids(),
		})
	}
	return out, nil
}

// walk steps from index start of piece in direction step until it reaches a
// vertex carrying a row of this segment. It takes at most len(piece) steps;
// if none is found it falls back to the row beside the split edge.
func (s segmentLine) walk(piece geometry.TaggedLine, start, step, fallback int) (int, error) {
	for i, n := start, 0; i >= 0 && i < len(piece) && n < len(piece); i, n = i+step, n+1 {
		if row := piece[i].Row; s.validRow(row) {
			return row, nil
		}
	}
	if s.validRow(fallback) {
		return fallback, nil
	}
	return 0, fmt.Errorf("%w: segment %d: no sample found walking from a self crossing (fallback row %d)", ErrConsistency, s.id, fallback)
}

func (s segmentLine) validRow(row int) bool {
	return row >= 1 && row <= len(s.points)
}

func (s segmentLine) passBracket(p pass) bracket {
	return bracket{
		before:  s.points[p.before-1],
		after:   s.points[p.after-1],
		beforeP: s.projected[p.before-1].Point,
		afterP:  s.projected[p.after-1].Point,
	}
}

// other returns the bracketing id that is not id.
func (b bracket) other(id int64) int64 {
	if b.before.ID == id {
		return b.after.ID
	}
	return b.before.ID
}
