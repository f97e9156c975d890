package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/steward-labs/steward/internal/domain"
	"github.com/steward-labs/steward/internal/domain/proposal"
	"github.com/steward-labs/steward/internal/domain/tool"
)

const proposalColumns = `id, tenant_id, session_id, tool_name, tier, payload, preview,
	 status, COALESCE(failure_reason, ''), created_at, window_expires_at, executed_at`

func scanProposal(row scannable) (proposal.Proposal, error) {
	var p proposal.Proposal
	var executedAt *time.Time
	err := row.Scan(&p.ID, &p.TenantID, &p.SessionID, &p.ToolName, &p.Tier, &p.Payload,
		&p.Preview, &p.Status, &p.FailureReason, &p.CreatedAt, &p.WindowExpires, &executedAt)
	if err != nil {
		return proposal.Proposal{}, err
	}
	p.ExecutedAt = executedAt
	return p, nil
}

func (s *Store) CreateProposal(ctx context.Context, p *proposal.Proposal) (*proposal.Proposal, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO proposals (tenant_id, session_id, tool_name, tier, payload, preview, status, window_expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
		 RETURNING `+proposalColumns,
		p.TenantID, p.SessionID, p.ToolName, p.Tier, p.Payload, p.Preview, p.WindowExpires)

	created, err := scanProposal(row)
	if err != nil {
		return nil, fmt.Errorf("create proposal: %w", err)
	}
	return &created, nil
}

func (s *Store) GetProposal(ctx context.Context, id string) (*proposal.Proposal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id)

	p, err := scanProposal(row)
	if err != nil {
		return nil, notFoundWrap(err, "get proposal %s", id)
	}
	return &p, nil
}

// ConfirmProposal transitions PENDING→CONFIRMED under a row lock. The
// ownership check happens inside the same transaction as the update so no
// interleaving can let session A confirm session B's pending action.
func (s *Store) ConfirmProposal(ctx context.Context, id, sessionID string) (*proposal.Proposal, error) {
	var confirmed proposal.Proposal
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+proposalColumns+` FROM proposals WHERE id = $1 FOR UPDATE`, id)
		p, err := scanProposal(row)
		if err != nil {
			return notFoundWrap(err, "confirm proposal %s", id)
		}
		if p.SessionID != sessionID {
			// Never reveal the owning session in the error.
			return fmt.Errorf("confirm proposal %s: %w", id, domain.ErrAccessDenied)
		}
		if p.Status != proposal.StatusPending {
			return fmt.Errorf("confirm proposal %s: status %s: %w", id, p.Status, domain.ErrInvalidTransition)
		}

		row = tx.QueryRow(ctx,
			`UPDATE proposals SET status = 'confirmed' WHERE id = $1 RETURNING `+proposalColumns, id)
		confirmed, err = scanProposal(row)
		if err != nil {
			return fmt.Errorf("confirm proposal %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &confirmed, nil
}

// MarkProposalExecuted transitions CONFIRMED→EXECUTED. Idempotent: a proposal
// already EXECUTED is returned unchanged, so a crash between confirm and
// execute can be resumed without double-recording.
func (s *Store) MarkProposalExecuted(ctx context.Context, id string, at time.Time) (*proposal.Proposal, error) {
	var out proposal.Proposal
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+proposalColumns+` FROM proposals WHERE id = $1 FOR UPDATE`, id)
		p, err := scanProposal(row)
		if err != nil {
			return notFoundWrap(err, "mark proposal %s executed", id)
		}
		if p.Status == proposal.StatusExecuted {
			out = p
			return nil
		}
		if p.Status != proposal.StatusConfirmed {
			return fmt.Errorf("mark proposal %s executed: status %s: %w", id, p.Status, domain.ErrInvalidTransition)
		}

		// COALESCE keeps the timestamp of an optimistic run that happened
		// before confirmation.
		row = tx.QueryRow(ctx,
			`UPDATE proposals SET status = 'executed', executed_at = COALESCE(executed_at, $2) WHERE id = $1 RETURNING `+proposalColumns,
			id, at)
		out, err = scanProposal(row)
		if err != nil {
			return fmt.Errorf("mark proposal %s executed: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordProposalExecution stamps executed_at on a still-PENDING proposal whose
// tool already ran optimistically. The status is untouched: confirmation or
// rejection still decides the final state, and the stamp tells the confirm
// path not to run the tool a second time.
func (s *Store) RecordProposalExecution(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE proposals SET executed_at = $2 WHERE id = $1 AND status = 'pending'`, id, at)
	return execExpectOne(tag, err, "record proposal %s execution", id)
}

func (s *Store) MarkProposalFailed(ctx context.Context, id, reason string) (*proposal.Proposal, error) {
	var out proposal.Proposal
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+proposalColumns+` FROM proposals WHERE id = $1 FOR UPDATE`, id)
		p, err := scanProposal(row)
		if err != nil {
			return notFoundWrap(err, "mark proposal %s failed", id)
		}
		if !proposal.CanTransition(p.Status, proposal.StatusFailed) {
			return fmt.Errorf("mark proposal %s failed: status %s: %w", id, p.Status, domain.ErrInvalidTransition)
		}

		row = tx.QueryRow(ctx,
			`UPDATE proposals SET status = 'failed', failure_reason = $2 WHERE id = $1 RETURNING `+proposalColumns,
			id, reason)
		out, err = scanProposal(row)
		if err != nil {
			return fmt.Errorf("mark proposal %s failed: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ExpireProposals is the cooperative sweep run at the start of every turn:
// all of the session's PENDING proposals whose windows have passed move to
// EXPIRED in one statement.
func (s *Store) ExpireProposals(ctx context.Context, tenantID, sessionID string, now time.Time) ([]proposal.Proposal, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE proposals SET status = 'expired'
		 WHERE tenant_id = $1 AND session_id = $2 AND status = 'pending' AND window_expires_at <= $3
		 RETURNING `+proposalColumns,
		tenantID, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("expire proposals: %w", err)
	}
	defer rows.Close()
	return collectProposals(rows)
}

func (s *Store) ListPendingProposals(ctx context.Context, tenantID, sessionID string, tier tool.TrustTier) ([]proposal.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals
		 WHERE tenant_id = $1 AND session_id = $2 AND status = 'pending'`
	args := []any{tenantID, sessionID}
	if tier != "" {
		query += ` AND tier = $3`
		args = append(args, tier)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending proposals: %w", err)
	}
	defer rows.Close()
	return collectProposals(rows)
}

// ListDuePendingProposals returns the session's soft-confirm (T2) proposals
// whose windows have elapsed without objection, i.e. auto-confirm candidates.
func (s *Store) ListDuePendingProposals(ctx context.Context, tenantID, sessionID string, now time.Time) ([]proposal.Proposal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+proposalColumns+` FROM proposals
		 WHERE tenant_id = $1 AND session_id = $2 AND status = 'pending' AND tier = 'T2' AND window_expires_at <= $3
		 ORDER BY created_at ASC`,
		tenantID, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("list due proposals: %w", err)
	}
	defer rows.Close()
	return collectProposals(rows)
}

func collectProposals(rows pgx.Rows) ([]proposal.Proposal, error) {
	var result []proposal.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return result, nil
}
