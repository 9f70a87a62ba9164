// Package store archives run summaries and binned loss maps in a sqlite
// database so that runs can be compared later.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/lossmap/internal/lossmap"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("store: run not found")

type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the archive at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	s := &Store{DB: db}
	if err := s.MigrateUp(); err != nil {
		opsf("migrating %s: %v", path, err)
		db.Close()
		return nil, err
	}
	return s, nil
}

// RunRecord is one archived run.
type RunRecord struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	Version       string
	NPart         int
	Seed          uint64
	Turns         int
	TurnsRun      int
	Survivors     int
	Absorbed      int
	StoppedEarly  bool
	BScale        float64
	Doublings     int
	ImpactSigma   float64
	LossesKept    int
	LossesDropped int
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RecordRun inserts r, assigning an id when r.ID is empty. The id used is
// returned.
func (s *Store) RecordRun(r RunRecord) (string, error) {
	if r.ID == "" {
		r.ID = NewRunID()
	} else if _, err := uuid.Parse(r.ID); err != nil {
		return "", fmt.Errorf("run id %q: %w", r.ID, err)
	}
	_, err := s.Exec(`
		INSERT INTO runs (
			run_id, started_at, finished_at, version, npart, seed, turns, turns_run,
			survivors, absorbed, stopped_early, bscale, doublings, impact_sigma,
			losses_kept, losses_dropped
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.Version, r.NPart, int64(r.Seed), r.Turns, r.TurnsRun,
		r.Survivors, r.Absorbed, r.StoppedEarly, nullFloat(r.BScale), r.Doublings, nullFloat(r.ImpactSigma),
		r.LossesKept, r.LossesDropped,
	)
	if err != nil {
		return "", fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	diagf("recorded run %s", r.ID)
	return r.ID, nil
}

// RecordLossBins stores the finalised bins of a run in one transaction.
func (s *Store) RecordLossBins(runID string, bins []lossmap.Bin) error {
	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO loss_bins (run_id, s, element, type, length, count, weight)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare loss bin insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bins {
		if _, err := stmt.Exec(runID, b.S, b.Element, b.Type, b.Length, b.Count, b.Weight); err != nil {
			return fmt.Errorf("insert bin %s@%g: %w", b.Element, b.S, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit loss bins: %w", err)
	}
	diagf("stored %d loss bins for run %s", len(bins), runID)
	return nil
}

// Run loads one run by id.
func (s *Store) Run(id string) (RunRecord, error) {
	var (
		r                   RunRecord
		started, finished   string
		seed                int64
		bscale, impactSigma sql.NullFloat64
		doublings           sql.NullInt64
	)
	err := s.QueryRow(`
		SELECT run_id, started_at, finished_at, version, npart, seed, turns, turns_run,
		       survivors, absorbed, stopped_early, bscale, doublings, impact_sigma,
		       losses_kept, losses_dropped
		FROM runs WHERE run_id = ?`, id).Scan(
		&r.ID, &started, &finished, &r.Version, &r.NPart, &seed, &r.Turns, &r.TurnsRun,
		&r.Survivors, &r.Absorbed, &r.StoppedEarly, &bscale, &doublings, &impactSigma,
		&r.LossesKept, &r.LossesDropped,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("query run %s: %w", id, err)
	}
	r.Seed = uint64(seed)
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return RunRecord{}, fmt.Errorf("run %s started_at: %w", id, err)
	}
	if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return RunRecord{}, fmt.Errorf("run %s finished_at: %w", id, err)
	}
	r.BScale = bscale.Float64
	r.Doublings = int(doublings.Int64)
	r.ImpactSigma = impactSigma.Float64
	return r, nil
}

// LossBins returns the stored bins of a run ordered by position.
func (s *Store) LossBins(runID string) ([]lossmap.Bin, error) {
	rows, err := s.Query(`
		SELECT s, element, type, length, count, weight
		FROM loss_bins WHERE run_id = ? ORDER BY s`, runID)
	if err != nil {
		return nil, fmt.Errorf("query loss bins: %w", err)
	}
	defer rows.Close()

	var bins []lossmap.Bin
	for rows.Next() {
		var b lossmap.Bin
		if err := rows.Scan(&b.S, &b.Element, &b.Type, &b.Length, &b.Count, &b.Weight); err != nil {
			return nil, fmt.Errorf("scan loss bin: %w", err)
		}
		bins = append(bins, b)
	}
	return bins, rows.Err()
}

// nullFloat stores zero (unset) as NULL.
func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v != 0}
}
