// Package db archives pipeline runs in SQLite so past agreement results can be
// queried after the in-memory snapshot has moved on.
package db

import (
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/agreement.report/internal/agreement"
	"github.com/banshee-data/agreement.report/internal/monitoring"
)

type DB struct {
	*sql.DB
}

// pragmas are applied to every pooled connection by the driver.
const pragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// OpenDB opens the database without touching its schema.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

// NewDB opens the database and applies any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Run is one archived pipeline run.
type Run struct {
	RunID      uuid.UUID     `json:"run_id"`
	ComputedAt time.Time     `json:"computed_at"`
	Duration   time.Duration `json:"duration_ns"`
	Weighting  string        `json:"weighting"`
	ScaleMin   int           `json:"scale_min"`
	ScaleMax   int           `json:"scale_max"`
}

// SaveRun stores every table of res under runID in a single transaction.
// Saving the same runID twice fails.
func (db *DB) SaveRun(ctx context.Context, runID uuid.UUID, computedAt time.Time, duration time.Duration, res *agreement.Result) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	id := runID.String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, computed_at, duration_ms, weighting, scale_min, scale_max) VALUES (?, ?, ?, ?, ?, ?)`,
		id, computedAt.UTC(), duration.Milliseconds(), res.Weighting.String(), res.Scheme.ScaleMin, res.Scheme.ScaleMax,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", id, err)
	}

	for _, row := range res.Kappas {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kappas (run_id, round, grp, category, kappa) VALUES (?, ?, ?, ?, ?)`,
			id, row.Round, row.Group, row.Category, nullScore(row.Kappa),
		); err != nil {
			return fmt.Errorf("insert kappa %s: %w", row.Key, err)
		}
	}

	for _, row := range res.Differences {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO differences (run_id, round, grp, category, difference, count) VALUES (?, ?, ?, ?, ?, ?)`,
			id, row.Round, row.Group, row.Category, row.Difference, row.Count,
		); err != nil {
			return fmt.Errorf("insert difference %s: %w", row.Key, err)
		}
	}

	for _, c := range tallyCounts(res.Counts) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO counts (run_id, round, grp, category, rater_group, rater_index, rating, n) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, c.Round, c.Group, c.Category, c.Rater.Group, c.Rater.Index, c.Rating, c.n,
		); err != nil {
			return fmt.Errorf("insert count %s: %w", c.Key, err)
		}
	}

	for _, s := range res.Summaries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO summaries (run_id, round, category, within_kappa, between_kappa, within_pairs, between_pairs) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, s.Round, s.Category, nullScore(s.Within), nullScore(s.Between), s.WithinPairs, s.BetweenPairs,
		); err != nil {
			return fmt.Errorf("insert summary round %d %q: %w", s.Round, s.Category, err)
		}
	}

	for _, s := range res.Skipped {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO skipped (run_id, round, grp, category, raters, reason) VALUES (?, ?, ?, ?, ?, ?)`,
			id, s.Round, s.Group, s.Category, s.Raters, s.Reason,
		); err != nil {
			return fmt.Errorf("insert skipped %s: %w", s.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	monitoring.Debugf("archived run %s: %d kappa rows", id, len(res.Kappas))
	return nil
}

// Runs lists archived runs, newest first.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT run_id, computed_at, duration_ms, weighting, scale_min, scale_max FROM runs ORDER BY computed_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r  Run
			id string
			ms int64
		)
		if err := rows.Scan(&id, &r.ComputedAt, &ms, &r.Weighting, &r.ScaleMin, &r.ScaleMax); err != nil {
			return nil, err
		}
		if r.RunID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunByID returns one archived run, or an error wrapping sql.ErrNoRows.
func (db *DB) RunByID(ctx context.Context, runID uuid.UUID) (Run, error) {
	var (
		r  Run
		ms int64
	)
	err := db.QueryRowContext(ctx,
		`SELECT computed_at, duration_ms, weighting, scale_min, scale_max FROM runs WHERE run_id = ?`,
		runID.String(),
	).Scan(&r.ComputedAt, &ms, &r.Weighting, &r.ScaleMin, &r.ScaleMax)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: %w", runID, err)
	}
	r.RunID = runID
	r.Duration = time.Duration(ms) * time.Millisecond
	return r, nil
}

// Kappas returns the archived kappa rows of one run. NULL kappas come back
// undefined.
func (db *DB) Kappas(ctx context.Context, runID uuid.UUID) ([]agreement.KappaRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT round, grp, category, kappa FROM kappas WHERE run_id = ? ORDER BY round, grp, category`,
		runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []agreement.KappaRow
	for rows.Next() {
		var (
			row agreement.KappaRow
			k   sql.NullFloat64
		)
		if err := rows.Scan(&row.Round, &row.Group, &row.Category, &k); err != nil {
			return nil, err
		}
		if k.Valid {
			row.Kappa = agreement.DefinedScore(k.Float64)
		} else {
			row.Kappa = agreement.UndefinedScore()
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RowCounts reports how many rows each table holds for runID.
func (db *DB) RowCounts(ctx context.Context, runID uuid.UUID) (map[string]int, error) {
	out := make(map[string]int, len(runTables))
	for _, table := range runTables {
		var n int
		// table names come from runTables, never from callers
		if err := db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE run_id = ?", table), runID.String(),
		).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

var runTables = []string{"kappas", "differences", "counts", "summaries", "skipped"}

// DeleteRun removes a run and, through cascading keys, all of its rows.
func (db *DB) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

type tally struct {
	agreement.CountRow
	n int
}

func tallyCounts(rows []agreement.CountRow) []tally {
	idx := make(map[agreement.CountRow]int)
	var out []tally
	for _, r := range rows {
		if i, ok := idx[r]; ok {
			out[i].n++
			continue
		}
		idx[r] = len(out)
		out = append(out, tally{CountRow: r, n: 1})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Key != b.Key {
			if a.Round != b.Round {
				return a.Round < b.Round
			}
			if a.Group != b.Group {
				return a.Group < b.Group
			}
			return a.Category < b.Category
		}
		if a.Rater != b.Rater {
			if a.Rater.Group != b.Rater.Group {
				return a.Rater.Group < b.Rater.Group
			}
			return a.Rater.Index < b.Rater.Index
		}
		return a.Rating < b.Rating
	})
	return out
}

func nullScore(s agreement.Score) sql.NullFloat64 {
	return sql.NullFloat64{Float64: s.Value, Valid: s.Defined}
}

// AttachAdminRoutes mounts the tsweb debug index with a live SQL console and
// a gzipped backup download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://agreement.db", db.DB, &tailsql.DBOptions{
		Label: "Agreement runs",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the run archive now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "agreement-backup-")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup dir: %v", err), http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(dir)

	name := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(dir, name)
	if _, err := db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	f, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		monitoring.Logf("backup copy failed: %v", err)
	}
}
