package crossover

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// pointColumns are the required columns of a point file; roll, pitch and
// heading are optional.
var pointColumns = []string{"gps_time", "lon", "lat", "elev"}

// ParsePointsFile reads a CSV point file for ingestion.
func ParsePointsFile(path string) ([]IngestPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParsePointsCSV(f)
}

// ParsePointsCSV reads header-keyed CSV rows into points, in file order.
func ParsePointsCSV(in io.Reader) ([]IngestPoint, error) {
	r := csv.NewReader(bufio.NewReader(in))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, errors.New("csv has no data rows")
	}

	header := records[0]
	// Handle BOM on first header cell
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range pointColumns {
		if _, ok := col[k]; !ok {
			return nil, fmt.Errorf("missing required column: %s", k)
		}
	}

	out := make([]IngestPoint, 0, len(records)-1)
	for rowIdx := 1; rowIdx < len(records); rowIdx++ {
		rec := records[rowIdx]
		var rowErr error
		get := func(name string) float64 {
			i, ok := col[name]
			if !ok || i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
				return 0
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil && rowErr == nil {
				rowErr = fmt.Errorf("row %d: %s: %w", rowIdx+1, name, err)
			}
			return v
		}

		p := IngestPoint{
			GPSTime:   get("gps_time"),
			Longitude: get("lon"),
			Latitude:  get("lat"),
			Elevation: get("elev"),
			Roll:      get("roll"),
			Pitch:     get("pitch"),
			Heading:   get("heading"),
		}
		if rowErr != nil {
			return nil, rowErr
		}
		out = append(out, p)
	}
	return out, nil
}
