package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"

	"github.com/CReSIS/OLD-OPS-sub000/internal/config"
	"github.com/CReSIS/OLD-OPS-sub000/internal/crossover"
	"github.com/CReSIS/OLD-OPS-sub000/internal/db"
)

func main() {
	var (
		app      = flag.String("app", crossover.DefaultApp, "dataset: rds, snow, accum or kuband")
		segment  = flag.Int64("segment", 0, "segment id to run detection for")
		location = flag.String("location", "", "location name (looked up from the segment when empty)")
		all      = flag.Bool("all", false, "run detection for every segment flagged crossover_calc")
		ingest   = flag.String("ingest", "", "CSV point file to ingest as a new segment")
		season   = flag.String("season", "", "season name for -ingest")
		name     = flag.String("name", "", "segment name for -ingest")
		migrate  = flag.Bool("migrate", false, "create schemas and tables before running")
	)
	flag.Parse()

	modes := 0
	for _, on := range []bool{*segment > 0, *all, *ingest != ""} {
		if on {
			modes++
		}
	}
	if modes != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	conn, err := db.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if *migrate {
		if err := crossover.Migrate(conn, crossover.Apps); err != nil {
			log.Fatal(err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	svc := crossover.NewService(
		crossover.PostgisBackend{DB: conn, QueryTimeout: cfg.QueryTimeout},
		cfg.MatchTolerance,
		cfg.CandidateConcurrency,
	)

	switch {
	case *all:
		summary, err := svc.RunAll(ctx, *app)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%d segments, %d succeeded, %d crossovers saved\n", summary.Segments, summary.Succeeded, summary.Saved)
		ids := make([]int64, 0, len(summary.Failed))
		for id := range summary.Failed {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			fmt.Printf("  segment %d: %v\n", id, summary.Failed[id])
		}
		if len(ids) > 0 {
			os.Exit(1)
		}

	case *ingest != "":
		points, err := crossover.ParsePointsFile(*ingest)
		if err != nil {
			log.Fatal(err)
		}
		result, err := svc.Ingest(ctx, crossover.IngestRequest{
			App:      *app,
			Season:   *season,
			Location: *location,
			Segment:  *name,
			Points:   points,
		})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("ingested segment %d (%d points)\n", result.SegmentID, result.Points)
		if result.Run != nil {
			fmt.Printf("run %s: %d crossovers saved\n", result.Run.RunID, result.Run.Saved)
		}

	default:
		result, err := svc.Run(ctx, crossover.DetectRequest{
			SegmentID:    *segment,
			LocationName: *location,
			App:          *app,
		})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("run %s: segment %d, %d crossovers saved\n", result.RunID, result.SegmentID, result.Saved)
		for _, c := range result.Crossovers {
			fmt.Printf("  %d x %d  angle %.2f  at %.6f,%.6f\n", c.PointPath1, c.PointPath2, c.Angle, c.Geom.Lon(), c.Geom.Lat())
		}
	}
}
