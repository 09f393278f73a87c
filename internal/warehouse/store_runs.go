package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"medwarehouse/internal/services"
)

type runRow struct {
	RunID         string   `db:"run_id"`
	PartitionDate string   `db:"partition_date"`
	Status        string   `db:"status"`
	CurrentStage  string   `db:"current_stage"`
	ErrorKind     string   `db:"error_kind"`
	ErrorMessage  string   `db:"error_message"`
	StageResults  string   `db:"stage_results"`
	StartedAt     sqlTime  `db:"started_at"`
	UpdatedAt     sqlTime  `db:"updated_at"`
	FinishedAt    *sqlTime `db:"finished_at"`
}

func (r runRow) toRun() Run {
	run := Run{
		ID:           r.RunID,
		Partition:    r.PartitionDate,
		Status:       RunStatus(r.Status),
		CurrentStage: r.CurrentStage,
		ErrorKind:    r.ErrorKind,
		ErrorMessage: r.ErrorMessage,
		StageResults: r.StageResults,
		StartedAt:    r.StartedAt.Time,
		UpdatedAt:    r.UpdatedAt.Time,
	}
	if r.FinishedAt != nil && !r.FinishedAt.IsZero() {
		finished := r.FinishedAt.Time
		run.FinishedAt = &finished
	}
	return run
}

const runColumns = `run_id, partition_date, status, current_stage, error_kind,
	error_message, stage_results, started_at, updated_at, finished_at`

// CreateRun persists a new run record. StartedAt defaults to now.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return services.Wrap(services.ErrValidation, "warehouse", "create run", "run id is required", nil)
	}
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = RunIdle
	}
	if run.StageResults == "" {
		run.StageResults = "[]"
	}
	_, err := s.execWithRetry(ctx, `INSERT INTO pipeline_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Partition, string(run.Status), run.CurrentStage, run.ErrorKind,
		run.ErrorMessage, run.StageResults, sqlTime{run.StartedAt}, sqlTime{run.UpdatedAt},
		nullableTime(run.FinishedAt))
	if err != nil {
		return services.Wrap(services.ErrTransient, "warehouse", "create run", run.ID, err)
	}
	return nil
}

// UpdateRun writes the mutable fields of a run and bumps updated_at.
func (s *Store) UpdateRun(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return services.Wrap(services.ErrValidation, "warehouse", "update run", "run id is required", nil)
	}
	run.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(ctx, `UPDATE pipeline_runs SET status = ?, current_stage = ?,
		error_kind = ?, error_message = ?, stage_results = ?, updated_at = ?, finished_at = ?
		WHERE run_id = ?`,
		string(run.Status), run.CurrentStage, run.ErrorKind, run.ErrorMessage, run.StageResults,
		sqlTime{run.UpdatedAt}, nullableTime(run.FinishedAt), run.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "warehouse", "update run", run.ID, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return services.Wrap(services.ErrNotFound, "warehouse", "update run", run.ID, nil)
	}
	return nil
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var row runRow
	err := s.getWithRetry(ctx, &row, "SELECT "+runColumns+" FROM pipeline_runs WHERE run_id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "warehouse", "get run", id, nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "get run", id, err)
	}
	run := row.toRun()
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	if err := s.selectWithRetry(ctx, &rows, "SELECT "+runColumns+" FROM pipeline_runs ORDER BY started_at DESC, run_id DESC LIMIT ?", limit); err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "list runs", "", err)
	}
	out := make([]Run, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRun())
	}
	return out, nil
}

// FailInterrupted marks every run left in a processing state as failed and
// returns how many were reclaimed.
func (s *Store) FailInterrupted(ctx context.Context, message string) (int64, error) {
	now := sqlTime{time.Now().UTC()}
	res, err := s.execWithRetry(ctx, `UPDATE pipeline_runs SET status = ?, error_kind = ?, error_message = ?,
		updated_at = ?, finished_at = ? WHERE status IN (?, ?, ?, ?, ?)`,
		string(RunFailed), string(services.KindInternal), message, now, now,
		string(RunIdle), string(RunScraping), string(RunLoading), string(RunTransforming), string(RunEnriching))
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "warehouse", "fail interrupted runs", "", err)
	}
	return res.RowsAffected()
}
