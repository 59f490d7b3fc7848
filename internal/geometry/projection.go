package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ErrProjection is returned for an unknown CRS or a point the CRS cannot represent.
var ErrProjection = errors.New("projection error")

// EPSG codes understood by Project.
const (
	EPSGWGS84            = 4326
	EPSGNorthPolarStereo = 3413 // NSIDC Sea Ice Polar Stereographic North
	EPSGSouthPolarStereo = 3031 // Antarctic Polar Stereographic
)

// WGS84 ellipsoid.
const (
	semiMajor  = 6378137.0
	flattening = 1 / 298.257223563
)

var eccentricity = math.Sqrt(flattening * (2 - flattening))

// polarStereo describes a polar stereographic projection with a standard parallel.
type polarStereo struct {
	south  bool
	latTS  float64 // radians, always expressed for the north aspect
	lon0   float64 // radians, always expressed for the north aspect
	mc, tc float64
}

func newPolarStereo(latTSDeg, lon0Deg float64, south bool) polarStereo {
	p := polarStereo{south: south}
	p.latTS = latTSDeg * math.Pi / 180
	p.lon0 = lon0Deg * math.Pi / 180
	if south {
		p.latTS = -p.latTS
		p.lon0 = -p.lon0
	}
	p.mc = math.Cos(p.latTS) / math.Sqrt(1-eccentricity*eccentricity*math.Sin(p.latTS)*math.Sin(p.latTS))
	p.tc = tsfn(p.latTS)
	return p
}

var projections = map[int]polarStereo{
	EPSGNorthPolarStereo: newPolarStereo(70, -45, false),
	EPSGSouthPolarStereo: newPolarStereo(-71, 0, true),
}

// SupportedEPSG reports whether Project can handle the code.
func SupportedEPSG(epsg int) bool {
	if epsg == EPSGWGS84 {
		return true
	}
	_, ok := projections[epsg]
	return ok
}

// Project reprojects p (x=lon,y=lat for EPSG:4326) between the supported CRSs.
func Project(p orb.Point, from, to int) (orb.Point, error) {
	if !SupportedEPSG(from) {
		return orb.Point{}, fmt.Errorf("%w: unknown source EPSG:%d", ErrProjection, from)
	}
	if !SupportedEPSG(to) {
		return orb.Point{}, fmt.Errorf("%w: unknown target EPSG:%d", ErrProjection, to)
	}
	if from == to {
		return p, nil
	}

	geo := p
	if from != EPSGWGS84 {
		geo = projections[from].inverse(p)
	}
	if to == EPSGWGS84 {
		return geo, nil
	}
	return projections[to].forward(geo)
}

// forward maps lon/lat degrees to projected metres (Snyder, Map Projections 21-33/21-34).
func (p polarStereo) forward(geo orb.Point) (orb.Point, error) {
	lon := geo[0] * math.Pi / 180
	lat := geo[1] * math.Pi / 180
	if p.south {
		lon, lat = -lon, -lat
	}
	if lat <= -math.Pi/2+1e-12 {
		return orb.Point{}, fmt.Errorf("%w: latitude %.6f is the opposite pole of the projection", ErrProjection, geo[1])
	}

	rho := semiMajor * p.mc * tsfn(lat) / p.tc
	x := rho * math.Sin(lon-p.lon0)
	y := -rho * math.Cos(lon-p.lon0)
	if p.south {
		x, y = -x, -y
	}
	return orb.Point{x, y}, nil
}

// inverse maps projected metres back to lon/lat degrees.
func (p polarStereo) inverse(pt orb.Point) orb.Point {
	x, y := pt[0], pt[1]
	if p.south {
		x, y = -x, -y
	}

	rho := math.Hypot(x, y)
	if rho == 0 {
		lat := 90.0
		if p.south {
			lat = -90
		}
		return orb.Point{normalizeLon(p.lon0 * 180 / math.Pi * sign(p.south)), lat}
	}

	t := rho * p.tc / (semiMajor * p.mc)
	lat := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < 15; i++ {
		es := eccentricity * math.Sin(lat)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-es)/(1+es), eccentricity/2))
		if math.Abs(next-lat) < 1e-14 {
			lat = next
			break
		}
		lat = next
	}
	lon := p.lon0 + math.Atan2(x, -y)

	if p.south {
		lat, lon = -lat, -lon
	}
	return orb.Point{normalizeLon(lon * 180 / math.Pi), lat * 180 / math.Pi}
}

func tsfn(lat float64) float64 {
	es := eccentricity * math.Sin(lat)
	return math.Tan(math.Pi/4-lat/2) / math.Pow((1-es)/(1+es), eccentricity/2)
}

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

func sign(south bool) float64 {
	if south {
		return -1
	}
	return 1
}
