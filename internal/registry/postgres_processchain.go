package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lyzr/wfcompiler/internal/db"
	"github.com/lyzr/wfcompiler/internal/workflow"
)

// PostgresProcessChainRegistry persists process chains in a
// "process_chains" table, one row per chain.
type PostgresProcessChainRegistry struct {
	db *db.DB
}

// NewPostgresProcessChainRegistry wraps an open pool as a
// ProcessChainRegistry.
func NewPostgresProcessChainRegistry(database *db.DB) *PostgresProcessChainRegistry {
	return &PostgresProcessChainRegistry{db: database}
}

func (r *PostgresProcessChainRegistry) AddProcessChains(ctx context.Context, submissionID string, chains []workflow.ProcessChain) error {
	for _, pc := range chains {
		executables, err := json.Marshal(pc.Executables)
		if err != nil {
			return fmt.Errorf("marshal executables for chain %s: %w", pc.ID, err)
		}
		_, err = r.db.Exec(ctx, `
			INSERT INTO process_chains (id, submission_id, executables, required_capabilities, status)
			VALUES ($1, $2, $3, $4, $5)`,
			pc.ID, submissionID, executables, pc.RequiredCapabilities, PCStatusRegistered)
		if err != nil {
			return fmt.Errorf("add process chain %s: %w", pc.ID, err)
		}
	}
	return nil
}

func (r *PostgresProcessChainRegistry) FindBySubmissionID(ctx context.Context, submissionID string) ([]workflow.ProcessChain, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, executables, required_capabilities FROM process_chains WHERE submission_id = $1`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("find process chains for submission %s: %w", submissionID, err)
	}
	defer rows.Close()

	var chains []workflow.ProcessChain
	for rows.Next() {
		var (
			id          string
			rawExec     []byte
			reqCapsList []string
		)
		if err := rows.Scan(&id, &rawExec, &reqCapsList); err != nil {
			return nil, fmt.Errorf("scan process chain: %w", err)
		}
		var executables []workflow.Executable
		if err := json.Unmarshal(rawExec, &executables); err != nil {
			return nil, fmt.Errorf("unmarshal executables for chain %s: %w", id, err)
		}
		chains = append(chains, workflow.ProcessChain{
			ID:                   id,
			Executables:          executables,
			RequiredCapabilities: reqCapsList,
		})
	}
	return chains, rows.Err()
}

func (r *PostgresProcessChainRegistry) CountByStatus(ctx context.Context, submissionID string, status ProcessChainStatus) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM process_chains WHERE submission_id = $1 AND status = $2`,
		submissionID, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count process chains by status for submission %s: %w", submissionID, err)
	}
	return count, nil
}

func (r *PostgresProcessChainRegistry) FindStatusesBySubmissionID(ctx context.Context, submissionID string) (map[string]ProcessChainStatus, error) {
	rows, err := r.db.Query(ctx, `SELECT id, status FROM process_chains WHERE submission_id = $1`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("find process chain statuses for submission %s: %w", submissionID, err)
	}
	defer rows.Close()

	statuses := make(map[string]ProcessChainStatus)
	for rows.Next() {
		var id string
		var status ProcessChainStatus
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scan process chain status: %w", err)
		}
		statuses[id] = status
	}
	return statuses, rows.Err()
}

func (r *PostgresProcessChainRegistry) GetResults(ctx context.Context, pcID string) (map[string][]any, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT results FROM process_chains WHERE id = $1`, pcID).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("get results for chain %s: %w", pcID, err)
	}
	if len(raw) == 0 {
		return map[string][]any{}, nil
	}
	var results map[string][]any
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("unmarshal results for chain %s: %w", pcID, err)
	}
	return results, nil
}

func (r *PostgresProcessChainRegistry) GetStatus(ctx context.Context, pcID string) (ProcessChainStatus, error) {
	var status ProcessChainStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM process_chains WHERE id = $1`, pcID).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("get status for chain %s: %w", pcID, err)
	}
	return status, nil
}

func (r *PostgresProcessChainRegistry) GetErrorMessage(ctx context.Context, pcID string) (string, error) {
	var msg string
	err := r.db.QueryRow(ctx, `SELECT coalesce(error_message, '') FROM process_chains WHERE id = $1`, pcID).Scan(&msg)
	if err != nil {
		return "", fmt.Errorf("get error message for chain %s: %w", pcID, err)
	}
	return msg, nil
}

func (r *PostgresProcessChainRegistry) SetStatus(ctx context.Context, pcID string, status ProcessChainStatus) error {
	_, err := r.db.Exec(ctx, `UPDATE process_chains SET status = $1 WHERE id = $2`, status, pcID)
	if err != nil {
		return fmt.Errorf("set status for chain %s: %w", pcID, err)
	}
	return nil
}

func (r *PostgresProcessChainRegistry) SetErrorMessage(ctx context.Context, pcID string, msg string) error {
	_, err := r.db.Exec(ctx, `UPDATE process_chains SET error_message = $1 WHERE id = $2`, msg, pcID)
	if err != nil {
		return fmt.Errorf("set error message for chain %s: %w", pcID, err)
	}
	return nil
}
