package crossover

import (
	"log"
	"time"
)

// logRunStart logs the start of a detection run.
func logRunStart(runID, app string, segmentID int64, epsg int) {
	log.Printf("[crossover] run=%s app=%s segment=%d epsg=%d starting", runID, app, segmentID, epsg)
}

// logRunDone logs a finished detection run.
func logRunDone(runID string, segmentID int64, found, saved int, duration time.Duration) {
	log.Printf("[crossover] run=%s segment=%d found=%d saved=%d in %dms",
		runID, segmentID, found, saved, duration.Milliseconds())
}

// logRunError logs a failed detection run.
func logRunError(runID string, segmentID int64, err error) {
	log.Printf("[crossover] run=%s segment=%d failed: %v", runID, segmentID, err)
}

func logDeleted(segmentID int64, rows int64) {
	log.Printf("[crossover] segment=%d deleted %d previous crossovers", segmentID, rows)
}

// logIngest logs a segment ingest.
func logIngest(app string, segmentID int64, points int, duration time.Duration) {
	log.Printf("[crossover] app=%s ingested segment=%d points=%d in %dms",
		app, segmentID, points, duration.Milliseconds())
}
