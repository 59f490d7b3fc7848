package crossover

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/CReSIS/OLD-OPS-sub000/internal/geometry"
)

// locationEPSG is the fixed location to projected CRS table.
var locationEPSG = map[string]int{
	"arctic":    geometry.EPSGNorthPolarStereo,
	"antarctic": geometry.EPSGSouthPolarStereo,
}

// Apps are the datasets, one Postgres schema each.
var Apps = []string{"rds", "snow", "accum", "kuband"}

// DefaultApp is used when a request names no app.
const DefaultApp = "rds"

// foldName normalises a user-supplied name. Casers carry state, so each
// call gets its own.
func foldName(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// LocationEPSG resolves a location name to its projected CRS.
func LocationEPSG(name string) (int, error) {
	epsg, ok := locationEPSG[foldName(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedLocation, name)
	}
	return epsg, nil
}

// LocationNames lists the supported locations.
func LocationNames() []string {
	return []string{"arctic", "antarctic"}
}

// ResolveApp validates an app name so it is safe to use as a schema name.
func ResolveApp(name string) (string, error) {
	name = foldName(name)
	if name == "" {
		return DefaultApp, nil
	}
	for _, app := range Apps {
		if app == name {
			return app, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedApp, name)
}
