package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/gkmerge/internal/experiment"
)

// timeFormat is fixed-width so that created_at sorts chronologically as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteResultStore implements ResultStore on a SQLite database.
type SQLiteResultStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteResultStore opens or creates dir/results.db.
func NewSQLiteResultStore(dir string) (*SQLiteResultStore, error) {
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(dir, "results.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteResultStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteResultStore) Path() string { return s.dbPath }

// Save writes the result in one transaction, replacing any result with the
// same id.
func (s *SQLiteResultStore) Save(ctx context.Context, res *experiment.Result) error {
	if err := validate(res); err != nil {
		return err
	}
	attrs, err := json.Marshal(res.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE id = ?`, res.ID); err != nil {
		return fmt.Errorf("failed to replace result: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO results (id, kind, created_at, duration_ns, attributes) VALUES (?, ?, ?, ?, ?)`,
		res.ID, string(res.Kind), res.CreatedAt.UTC().Format(timeFormat), int64(res.Duration), string(attrs)); err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	pointStmt, err := tx.PrepareContext(ctx, `INSERT INTO points (result_id, point_index, x) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare point insert: %w", err)
	}
	defer pointStmt.Close()
	runStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO runs (result_id, point_index, run_index, df, af, z, steps, lb_def) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare run insert: %w", err)
	}
	defer runStmt.Close()

	for i, p := range res.Points {
		if _, err := pointStmt.ExecContext(ctx, res.ID, i, p.X); err != nil {
			return fmt.Errorf("failed to insert point %d: %w", i, err)
		}
		for j, r := range p.Runs {
			var lbDef sql.NullBool
			if r.LargestDefaulted != nil {
				lbDef = sql.NullBool{Bool: *r.LargestDefaulted, Valid: true}
			}
			if _, err := runStmt.ExecContext(ctx, res.ID, i, j, r.DF, r.AF, r.Z, r.Steps, lbDef); err != nil {
				return fmt.Errorf("failed to insert run %d of point %d: %w", j, i, err)
			}
		}
	}
	return tx.Commit()
}

// Get loads a complete result.
func (s *SQLiteResultStore) Get(ctx context.Context, id string) (*experiment.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, err := s.scanResult(s.db.QueryRowContext(ctx,
		`SELECT id, kind, created_at, duration_ns, attributes FROM results WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	pointRows, err := s.db.QueryContext(ctx,
		`SELECT x FROM points WHERE result_id = ? ORDER BY point_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer pointRows.Close()
	for pointRows.Next() {
		var p experiment.Point
		if err := pointRows.Scan(&p.X); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		res.Points = append(res.Points, p)
	}
	if err := pointRows.Err(); err != nil {
		return nil, err
	}

	runRows, err := s.db.QueryContext(ctx,
		`SELECT point_index, df, af, z, steps, lb_def FROM runs WHERE result_id = ? ORDER BY point_index, run_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer runRows.Close()
	for runRows.Next() {
		var (
			idx   int
			r     experiment.RunData
			lbDef sql.NullBool
		)
		if err := runRows.Scan(&idx, &r.DF, &r.AF, &r.Z, &r.Steps, &lbDef); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if lbDef.Valid {
			v := lbDef.Bool
			r.LargestDefaulted = &v
		}
		if idx < 0 || idx >= len(res.Points) {
			return nil, fmt.Errorf("run references missing point %d", idx)
		}
		res.Points[idx].Runs = append(res.Points[idx].Runs, r)
	}
	return res, runRows.Err()
}

// List returns summaries newest first.
func (s *SQLiteResultStore) List(ctx context.Context, filter Filter) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT r.id, r.kind, r.created_at, r.attributes,
	       (SELECT COUNT(*) FROM points p WHERE p.result_id = r.id),
	       (SELECT COUNT(*) FROM runs u WHERE u.result_id = r.id)
	FROM results r`
	var args []any
	if filter.Kind != "" {
		query += ` WHERE r.kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY r.created_at DESC, r.id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			kind    string
			created string
			attrs   string
		)
		if err := rows.Scan(&sum.ID, &kind, &created, &attrs, &sum.Points, &sum.Runs); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		sum.Kind = experiment.Kind(kind)
		if sum.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("result %s: bad created_at: %w", sum.ID, err)
		}
		if err := json.Unmarshal([]byte(attrs), &sum.Attributes); err != nil {
			return nil, fmt.Errorf("result %s: bad attributes: %w", sum.ID, err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a result with its points and runs.
func (s *SQLiteResultStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE result_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete runs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM points WHERE result_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	r, err := tx.ExecContext(ctx, `DELETE FROM results WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteResultStore) scanResult(row *sql.Row) (*experiment.Result, error) {
	var (
		res      experiment.Result
		kind     string
		created  string
		duration int64
		attrs    string
	)
	if err := row.Scan(&res.ID, &kind, &created, &duration, &attrs); err != nil {
		return nil, err
	}
	res.Kind = experiment.Kind(kind)
	res.Duration = time.Duration(duration)
	var err error
	if res.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("result %s: bad created_at: %w", res.ID, err)
	}
	if err := json.Unmarshal([]byte(attrs), &res.Attributes); err != nil {
		return nil, fmt.Errorf("result %s: bad attributes: %w", res.ID, err)
	}
	return &res, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}
