package crossover

import (
	"context"
	"fmt"
	"log"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/CReSIS/OLD-OPS-sub000/internal/geometry"
)

// DefaultMatchTolerance is how far apart, in projected metres, the two
// computations of one inter-segment intersection may land and still pair.
const DefaultMatchTolerance = 1.0

// Detector finds every crossover of one segment. It holds no state between
// runs; callers serialize runs on the same segment.
type Detector struct {
	Gateway Gateway

	// MatchTolerance in projected metres; DefaultMatchTolerance when zero.
	MatchTolerance float64

	// Concurrency bounds parallel candidate lookups; 1 when zero.
	Concurrency int
}

// segmentLine is a segment's samples with their projected tagged line.
type segmentLine struct {
	id        int64
	points    []PathPoint
	projected geometry.TaggedLine
}

// Detect returns all inter-segment and self-intersection crossovers of the
// segment, computed in the projected CRS epsg.
func (d *Detector) Detect(ctx context.Context, segmentID int64, epsg int) ([]Crossover, error) {
	if !geometry.SupportedEPSG(epsg) || epsg == geometry.EPSGWGS84 {
		return nil, fmt.Errorf("%w: EPSG:%d is not a projected CRS", ErrProjection, epsg)
	}

	own, err := d.load(ctx, segmentID, epsg)
	if err != nil {
		return nil, err
	}
	if len(own.points) < 2 {
		return nil, nil
	}

	inter, err := d.interSegment(ctx, own, epsg)
	if err != nil {
		return nil, err
	}

	self, err := d.selfIntersections(own, epsg)
	if err != nil {
		return nil, err
	}

	return append(inter, self...), nil
}

func (d *Detector) load(ctx context.Context, segmentID int64, epsg int) (segmentLine, error) {
	points, err := d.Gateway.OrderedPoints(ctx, segmentID)
	if err != nil {
		return segmentLine{}, err
	}

	coords := make([]orb.Point, len(points))
	for i, p := range points {
		if p.Row != i+1 {
			return segmentLine{}, fmt.Errorf("%w: segment %d row %d at position %d", ErrConsistency, segmentID, p.Row, i+1)
		}
		coords[i] = orb.Point{p.Lon, p.Lat}
	}

	projected, err := geometry.ProjectLine(geometry.NewTaggedLine(coords), geometry.EPSGWGS84, epsg)
	if err != nil {
		return segmentLine{}, fmt.Errorf("segment %d: %w", segmentID, err)
	}
	return segmentLine{id: segmentID, points: points, projected: projected}, nil
}

type candidate struct {
	segmentLine
	storeLine orb.LineString
}

func (d *Detector) interSegment(ctx context.Context, own segmentLine, epsg int) ([]Crossover, error) {
	ids, err := d.Gateway.IntersectingSegments(ctx, own.id)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	ownStore, err := d.Gateway.SegmentLine(ctx, own.id, epsg)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(d.Concurrency, 1))
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			line, err := d.load(gctx, id, epsg)
			if err != nil {
				return err
			}
			storeLine, err := d.Gateway.SegmentLine(gctx, id, epsg)
			if err != nil {
				return err
			}
			candidates[i] = candidate{segmentLine: line, storeLine: storeLine}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Crossover
	for _, c := range candidates {
		found, err := d.pairWith(own, geometry.UntaggedLine(ownStore), c, epsg)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

// pairWith resolves the crossings of own with one candidate. Side 1 is own's
// tagged line against the candidate's stored line; side 2 is the candidate's
// tagged line against own's stored line.
func (d *Detector) pairWith(own segmentLine, ownStore geometry.TaggedLine, c candidate, epsg int) ([]Crossover, error) {
	side1 := geometry.Intersect(own.projected, geometry.UntaggedLine(c.storeLine))
	if len(side1) == 0 {
		return nil, nil
	}
	side2 := geometry.Intersect(c.projected, ownStore)
	if len(side2) == 0 {
		log.Printf("[crossover] %s: segment %d found %d intersections with segment %d, other side found none",
			MatchingPointPathsMessage, own.id, len(side1), c.id)
		return nil, fmt.Errorf("%w: %s (segment %d, segment %d)", ErrConsistency, MatchingPointPathsMessage, own.id, c.id)
	}

	pairs, err := matchIntersections(side1, side2, d.tolerance())
	if err != nil {
		log.Printf("[crossover] %s: segment %d vs segment %d: %v", MatchingPointPathsMessage, own.id, c.id, err)
		return nil, fmt.Errorf("%w: %s (segment %d, segment %d): %v", ErrConsistency, MatchingPointPathsMessage, own.id, c.id, err)
	}
	if len(side2) > len(side1) {
		log.Printf("[crossover] segment %d vs segment %d: %d unpaired intersections on the other side ignored",
			own.id, c.id, len(side2)-len(side1))
	}

	out := make([]Crossover, 0, len(pairs))
	for _, p := range pairs {
		x := p[0].Point

		first, err := bracketAt(own, p[0].RowA)
		if err != nil {
			return nil, err
		}
		second, err := bracketAt(c.segmentLine, p[1].RowA)
		if err != nil {
			return nil, err
		}

		geo, err := geometry.Project(x, epsg, geometry.EPSGWGS84)
		if err != nil {
			return nil, err
		}

		delta := first.bearingForward(x) - second.bearingForward(x)
		out = append(out, Crossover{
			PointPath1: first.nearest(x),
			PointPath2: second.nearest(x),
			Angle:      geometry.AcuteAngle(delta),
			Geom:       geo,
			Segment1:   own.id,
			Segment2:   c.id,
			Bracket1:   first.ids(),
			Bracket2:   second.ids(),
		})
	}
	return out, nil
}

func (d *Detector) tolerance() float64 {
	if d.MatchTolerance > 0 {
		return d.MatchTolerance
	}
	return DefaultMatchTolerance
}

// matchIntersections pairs every side-1 point with the nearest unused side-2
// point within tol.
func matchIntersections(side1, side2 []geometry.Intersection, tol float64) ([][2]geometry.Intersection, error) {
	used := make([]bool, len(side2))
	pairs := make([][2]geometry.Intersection, 0, len(side1))
	for _, a := range side1 {
		best, bestDist := -1, tol
		for j, b := range side2 {
			if used[j] {
				continue
			}
			if dist := geometry.Length(a.Point, b.Point); dist <= bestDist {
				best, bestDist = j, dist
			}
		}
		if best < 0 {
			return nil, fmt.Errorf("no match within %.3gm for intersection at (%.3f, %.3f)", tol, a.Point[0], a.Point[1])
		}
		used[best] = true
		pairs = append(pairs, [2]geometry.Intersection{a, side2[best]})
	}
	return pairs, nil
}

// bracket is the pair of consecutive samples around an intersection.
type bracket struct {
	before, after   PathPoint
	beforeP, afterP orb.Point // projected
}

func bracketAt(line segmentLine, row int) (bracket, error) {
	if row < 1 || row >= len(line.points) {
		return bracket{}, fmt.Errorf("%w: segment %d has no edge starting at row %d", ErrConsistency, line.id, row)
	}
	return bracket{
		before:  line.points[row-1],
		after:   line.points[row],
		beforeP: line.projected[row-1].Point,
		afterP:  line.projected[row].Point,
	}, nil
}

// nearest is the id of the bracketing sample closer to x; ties go to the
// earlier sample.
func (b bracket) nearest(x orb.Point) int64 {
	if geometry.Length(x, b.afterP) < geometry.Length(x, b.beforeP) {
		return b.after.ID
	}
	return b.before.ID
}

// bearingForward is the azimuth from x toward the later sample. When x sits
// on that sample the edge direction is used instead.
func (b bracket) bearingForward(x orb.Point) float64 {
	if geometry.Length(x, b.afterP) <= geometry.Tolerance {
		return geometry.Azimuth(b.beforeP, b.afterP)
	}
	return geometry.Azimuth(x, b.afterP)
}

func (b bracket) ids() [2]int64 {
	return [2]int64{b.before.ID, b.after.ID}
}
