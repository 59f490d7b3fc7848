package crossover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/CReSIS/OLD-OPS-sub000/internal/geometry"
	"github.com/CReSIS/OLD-OPS-sub000/internal/utils"
)

// Runner is what the HTTP layer needs from a Service.
type Runner interface {
	Run(ctx context.Context, req DetectRequest) (RunResult, error)
	List(ctx context.Context, app string, segmentID int64) ([]Crossover, error)
	Ingest(ctx context.Context, req IngestRequest) (IngestResult, error)
}

// CrossoverDTO is the wire form of a crossover.
type CrossoverDTO struct {
	PointPath1ID int64           `json:"pointPath1Id"`
	PointPath2ID int64           `json:"pointPath2Id"`
	AngleDegrees float64         `json:"angleDegrees"`
	Geom         string          `json:"geom"`
	GeoJSON      json.RawMessage `json:"geojson"`
}

type envelope struct {
	Status  string      `json:"status"`
	RunID   string      `json:"run_id,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type detectInput struct {
	SegmentID    int64  `json:"segmentId"`
	LocationName string `json:"locationName"`
	App          string `json:"app"`
}

type ingestOutput struct {
	App        string         `json:"app"`
	SegmentID  int64          `json:"segmentId"`
	Points     int            `json:"points"`
	Crossovers []CrossoverDTO `json:"crossovers"`
}

func toDTOs(found []Crossover) ([]CrossoverDTO, error) {
	out := make([]CrossoverDTO, 0, len(found))
	for _, c := range found {
		gj, err := geometry.GeoJSON(c.Geom)
		if err != nil {
			return nil, err
		}
		out = append(out, CrossoverDTO{
			PointPath1ID: c.PointPath1,
			PointPath2ID: c.PointPath2,
			AngleDegrees: c.Angle,
			Geom:         geometry.WKT(c.Geom),
			GeoJSON:      gj,
		})
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[crossover] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := errorKind(err)
	if status >= http.StatusInternalServerError {
		reqID, _ := utils.GetRequestIDFromContext(r.Context())
		log.Printf("[crossover] request=%s %s %s failed: %v", reqID, r.Method, r.URL.Path, err)
	}
	message := err.Error()
	if errors.Is(err, ErrConsistency) {
		message = MatchingPointPathsMessage
	}
	writeJSON(w, status, envelope{Status: "error", Code: code, Message: message})
}

func writeSuccess(w http.ResponseWriter, runID string, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", RunID: runID, Data: data})
}

// DetectHandler runs detection for one segment and returns what it stored.
func DetectHandler(svc Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input detectInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid request body", ErrInvalidRequest))
			return
		}

		result, err := svc.Run(r.Context(), DetectRequest{
			SegmentID:    input.SegmentID,
			LocationName: input.LocationName,
			App:          input.App,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		data, err := toDTOs(result.Crossovers)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, result.RunID, data)
	}
}

// ListHandler returns the stored crossovers of a segment.
func ListHandler(svc Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		segmentID, err := strconv.ParseInt(chi.URLParam(r, "segmentID"), 10, 64)
		if err != nil || segmentID <= 0 {
			writeError(w, r, fmt.Errorf("%w: segment id must be a positive integer", ErrInvalidRequest))
			return
		}

		found, err := svc.List(r.Context(), r.URL.Query().Get("app"), segmentID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		data, err := toDTOs(found)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, "", data)
	}
}

// IngestHandler stores a new segment and runs detection when it is flagged.
func IngestHandler(svc Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid request body", ErrInvalidRequest))
			return
		}

		result, err := svc.Ingest(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}

		out := ingestOutput{App: result.App, SegmentID: result.SegmentID, Points: result.Points}
		runID := ""
		if result.Run != nil {
			runID = result.Run.RunID
			if out.Crossovers, err = toDTOs(result.Run.Crossovers); err != nil {
				writeError(w, r, err)
				return
			}
		}
		writeSuccess(w, runID, out)
	}
}
