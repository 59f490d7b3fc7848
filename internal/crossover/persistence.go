package crossover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/CReSIS/OLD-OPS-sub000/internal/geometry"
)

// insertBatchSize bounds the rows per INSERT statement.
const insertBatchSize = 500

// Store persists crossovers for one app schema.
type Store struct {
	db      *gorm.DB
	app     string
	timeout time.Duration
}

// NewStore scopes a store to an app schema. The app must come from ResolveApp.
func NewStore(db *gorm.DB, app string, timeout time.Duration) *Store {
	return &Store{db: db, app: app, timeout: timeout}
}

func (s *Store) table(name string) string {
	return fmt.Sprintf(`"%s".%s`, s.app, name)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Save inserts the batch in one transaction and returns the row count.
func (s *Store) Save(ctx context.Context, batch []Crossover) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.insert(tx, batch)
	})
	if err != nil {
		return 0, persistErr("save crossovers", err)
	}
	return len(batch), nil
}

// Replace deletes every crossover touching the segment's point paths and
// inserts the batch, all in one transaction.
func (s *Store) Replace(ctx context.Context, segmentID int64, batch []Crossover) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []int64
		if err := tx.Table(s.table("point_paths")).
			Where("segment_id = ?", segmentID).
			Pluck("id", &ids).Error; err != nil {
			return err
		}

		if len(ids) > 0 {
			del := tx.Exec(fmt.Sprintf(
				`DELETE FROM %s WHERE point_path_1 = ANY(?) OR point_path_2 = ANY(?)`,
				s.table("crossovers"),
			), pq.Array(ids), pq.Array(ids))
			if del.Error != nil {
				return del.Error
			}
			logDeleted(segmentID, del.RowsAffected)
		}

		return s.insert(tx, batch)
	})
	if err != nil {
		return 0, persistErr("replace crossovers", err)
	}
	return len(batch), nil
}

func (s *Store) insert(tx *gorm.DB, batch []Crossover) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]CrossoverRow, len(batch))
	for i, c := range batch {
		rows[i] = c.row()
	}
	return tx.Table(s.table("crossovers")).CreateInBatches(rows, insertBatchSize).Error
}

// StoredCrossover is a crossover row as listed back to clients.
type StoredCrossover struct {
	ID         int64   `gorm:"column:id"`
	PointPath1 int64   `gorm:"column:point_path_1"`
	PointPath2 int64   `gorm:"column:point_path_2"`
	Segment1   int64   `gorm:"column:segment1"`
	Segment2   int64   `gorm:"column:segment2"`
	Angle      float64 `gorm:"column:angle"`
	WKT        string  `gorm:"column:wkt"`
}

// List returns the crossovers touching a segment, ordered by id.
func (s *Store) List(ctx context.Context, segmentID int64) ([]Crossover, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT c.id,
			c.point_path_1,
			c.point_path_2,
			p1.segment_id AS segment1,
			p2.segment_id AS segment2,
			c.angle,
			ST_AsText(c.geom) AS wkt
		FROM %[1]s AS c
		JOIN %[2]s AS p1 ON p1.id = c.point_path_1
		JOIN %[2]s AS p2 ON p2.id = c.point_path_2
		WHERE p1.segment_id = ? OR p2.segment_id = ?
		ORDER BY c.id
	`, s.table("crossovers"), s.table("point_paths"))

	var stored []StoredCrossover
	if err := s.db.WithContext(ctx).Raw(query, segmentID, segmentID).Scan(&stored).Error; err != nil {
		return nil, storeErr("list crossovers", err)
	}

	out := make([]Crossover, 0, len(stored))
	for _, row := range stored {
		geom, err := geometry.ParseWKTPoint(row.WKT)
		if err != nil {
			return nil, fmt.Errorf("%w: crossover %d geometry: %w", ErrStore, row.ID, err)
		}
		out = append(out, Crossover{
			PointPath1: row.PointPath1,
			PointPath2: row.PointPath2,
			Angle:      row.Angle,
			Geom:       geom,
			Segment1:   row.Segment1,
			Segment2:   row.Segment2,
		})
	}
	return out, nil
}

// persistErr wraps a transaction failure, naming the violated constraint
// when Postgres reports one.
func persistErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503", "23505", "23514":
			return fmt.Errorf("%w: %s: constraint %s violated: %w", ErrStore, op, pgErr.ConstraintName, err)
		}
	}
	return storeErr(op, err)
}
