package crossover

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/CReSIS/OLD-OPS-sub000/internal/db"
)

// schemaDDL creates one app's tables. %[1]s is the quoted schema name.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS %[1]s.locations (
		id   BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.seasons (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		location_id BIGINT NOT NULL REFERENCES %[1]s.locations(id)
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.segments (
		id             BIGSERIAL PRIMARY KEY,
		season_id      BIGINT NOT NULL REFERENCES %[1]s.seasons(id),
		name           TEXT NOT NULL,
		geom           geometry(LineString, 4326),
		crossover_calc BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE (season_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.point_paths (
		id         BIGSERIAL PRIMARY KEY,
		segment_id BIGINT NOT NULL REFERENCES %[1]s.segments(id) ON DELETE CASCADE,
		gps_time   DOUBLE PRECISION NOT NULL,
		geom       geometry(PointZ, 4326) NOT NULL,
		roll       DOUBLE PRECISION NOT NULL DEFAULT 0,
		pitch      DOUBLE PRECISION NOT NULL DEFAULT 0,
		heading    DOUBLE PRECISION NOT NULL DEFAULT 0,
		CONSTRAINT point_paths_segment_gps_time_key UNIQUE (segment_id, gps_time)
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.crossovers (
		id           BIGSERIAL PRIMARY KEY,
		point_path_1 BIGINT NOT NULL REFERENCES %[1]s.point_paths(id) ON DELETE CASCADE,
		point_path_2 BIGINT NOT NULL REFERENCES %[1]s.point_paths(id) ON DELETE CASCADE,
		angle        DOUBLE PRECISION NOT NULL,
		geom         geometry(Point, 4326) NOT NULL,
		CONSTRAINT crossovers_angle_check CHECK (angle >= 0 AND angle <= 90),
		CONSTRAINT crossovers_distinct_check CHECK (point_path_1 <> point_path_2)
	)`,
	`CREATE INDEX IF NOT EXISTS segments_geom_idx ON %[1]s.segments USING GIST (geom)`,
	`CREATE INDEX IF NOT EXISTS point_paths_segment_idx ON %[1]s.point_paths (segment_id, gps_time)`,
	`CREATE INDEX IF NOT EXISTS crossovers_pp1_idx ON %[1]s.crossovers (point_path_1)`,
	`CREATE INDEX IF NOT EXISTS crossovers_pp2_idx ON %[1]s.crossovers (point_path_2)`,
}

// Migrate creates the PostGIS extension and every app schema with its
// tables, then seeds the supported locations.
func Migrate(d *gorm.DB, apps []string) error {
	if err := d.Exec(`CREATE EXTENSION IF NOT EXISTS postgis`).Error; err != nil {
		return fmt.Errorf("enable postgis: %w", err)
	}

	for _, name := range apps {
		app, err := ResolveApp(name)
		if err != nil {
			return err
		}
		if err := db.EnsureSchema(d, app); err != nil {
			return fmt.Errorf("ensure schema %s: %w", app, err)
		}

		schema := fmt.Sprintf(`"%s"`, app)
		for _, stmt := range schemaDDL {
			if err := d.Exec(fmt.Sprintf(stmt, schema)).Error; err != nil {
				return fmt.Errorf("migrate %s: %w", app, err)
			}
		}

		for _, loc := range LocationNames() {
			if err := d.Exec(fmt.Sprintf(
				`INSERT INTO %s.locations (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, schema,
			), loc).Error; err != nil {
				return fmt.Errorf("seed %s locations: %w", app, err)
			}
		}
	}
	return nil
}

// Init migrates every app schema on the shared connection.
func Init() {
	if err := Migrate(db.DB, Apps); err != nil {
		log.Fatal("Failed to migrate crossover schemas: ", err)
	}
}
