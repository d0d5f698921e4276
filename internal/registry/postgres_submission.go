package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lyzr/wfcompiler/internal/db"
	"github.com/lyzr/wfcompiler/internal/workflow"
)

// PostgresSubmissionRegistry persists submissions and their checkpointed
// compiler state in a "submissions" table.
type PostgresSubmissionRegistry struct {
	db *db.DB
}

// NewPostgresSubmissionRegistry wraps an open pool as a SubmissionRegistry.
func NewPostgresSubmissionRegistry(database *db.DB) *PostgresSubmissionRegistry {
	return &PostgresSubmissionRegistry{db: database}
}

func (r *PostgresSubmissionRegistry) FetchNext(ctx context.Context, fromStatus, toStatus SubmissionStatus) (*Submission, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE submissions SET status = $1
		WHERE id = (
			SELECT id FROM submissions
			WHERE status = $2
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, workflow, status, start_time, end_time`,
		toStatus, fromStatus)

	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch next submission: %w", err)
	}
	return sub, nil
}

// InsertSubmission accepts a new workflow for execution, assigning it a
// fresh id and the initial ACCEPTED status. Not part of SubmissionRegistry
// proper (the compiler/controller core only ever reads existing
// submissions); this is the ingestion-side counterpart an external intake
// path calls.
func (r *PostgresSubmissionRegistry) InsertSubmission(ctx context.Context, wf *workflow.Workflow) (string, error) {
	id := uuid.NewString()
	rawWF, err := json.Marshal(wf)
	if err != nil {
		return "", fmt.Errorf("marshal workflow for new submission: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO submissions (id, workflow, status, created_at)
		VALUES ($1, $2, $3, now())`,
		id, rawWF, StatusAccepted)
	if err != nil {
		return "", fmt.Errorf("insert submission: %w", err)
	}
	return id, nil
}

func (r *PostgresSubmissionRegistry) FindByID(ctx context.Context, id string) (*Submission, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, workflow, status, start_time, end_time FROM submissions WHERE id = $1`, id)

	sub, err := scanSubmission(row)
	if err != nil {
		return nil, fmt.Errorf("find submission %s: %w", id, err)
	}
	return sub, nil
}

func (r *PostgresSubmissionRegistry) FindIDsByStatus(ctx context.Context, status SubmissionStatus) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM submissions WHERE status = $1`, status)
	if err != nil {
		return nil, fmt.Errorf("find submission ids by status %s: %w", status, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan submission id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresSubmissionRegistry) GetStatus(ctx context.Context, id string) (SubmissionStatus, error) {
	var status SubmissionStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM submissions WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("get submission status %s: %w", id, err)
	}
	return status, nil
}

func (r *PostgresSubmissionRegistry) SetStatus(ctx context.Context, id string, status SubmissionStatus) error {
	_, err := r.db.Exec(ctx, `UPDATE submissions SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("set submission status %s: %w", id, err)
	}
	return nil
}

func (r *PostgresSubmissionRegistry) SetStartTime(ctx context.Context, id string, t time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE submissions SET start_time = $1 WHERE id = $2`, t, id)
	if err != nil {
		return fmt.Errorf("set submission start time %s: %w", id, err)
	}
	return nil
}

func (r *PostgresSubmissionRegistry) SetEndTime(ctx context.Context, id string, t time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE submissions SET end_time = $1 WHERE id = $2`, t, id)
	if err != nil {
		return fmt.Errorf("set submission end time %s: %w", id, err)
	}
	return nil
}

func (r *PostgresSubmissionRegistry) GetExecutionState(ctx context.Context, id string) ([]byte, error) {
	var blob []byte
	err := r.db.QueryRow(ctx, `SELECT execution_state FROM submissions WHERE id = $1`, id).Scan(&blob)
	if err != nil {
		return nil, fmt.Errorf("get execution state %s: %w", id, err)
	}
	return blob, nil
}

func (r *PostgresSubmissionRegistry) SetExecutionState(ctx context.Context, id string, blob []byte) error {
	_, err := r.db.Exec(ctx, `UPDATE submissions SET execution_state = $1 WHERE id = $2`, blob, id)
	if err != nil {
		return fmt.Errorf("set execution state %s: %w", id, err)
	}
	return nil
}

func (r *PostgresSubmissionRegistry) SetResults(ctx context.Context, id string, results map[string][]any) error {
	blob, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal submission results %s: %w", id, err)
	}
	_, err = r.db.Exec(ctx, `UPDATE submissions SET results = $1 WHERE id = $2`, blob, id)
	if err != nil {
		return fmt.Errorf("set submission results %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var (
		id        string
		rawWF     []byte
		status    SubmissionStatus
		startTime *time.Time
		endTime   *time.Time
	)
	if err := row.Scan(&id, &rawWF, &status, &startTime, &endTime); err != nil {
		return nil, err
	}

	var wf workflow.Workflow
	if len(rawWF) > 0 {
		if err := json.Unmarshal(rawWF, &wf); err != nil {
			return nil, fmt.Errorf("unmarshal workflow for submission %s: %w", id, err)
		}
	}

	return &Submission{
		ID:        id,
		Workflow:  &wf,
		Status:    status,
		StartTime: startTime,
		EndTime:   endTime,
	}, nil
}
