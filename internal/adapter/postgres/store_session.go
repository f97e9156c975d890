package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/steward-labs/steward/internal/domain/session"
)

const sessionColumns = `id, tenant_id, session_type, active, created_at, last_activity_at,
	 t1_used, t2_used, t3_used`

func scanSession(row scannable) (session.Session, error) {
	var s session.Session
	err := row.Scan(&s.ID, &s.TenantID, &s.Type, &s.Active, &s.CreatedAt, &s.LastActivityAt,
		&s.TurnUsage.T1, &s.TurnUsage.T2, &s.TurnUsage.T3)
	return s, err
}

// EnsureActiveSession returns the active session for (tenant, type), creating
// one when none exists. The partial unique index active_session_per_surface
// makes the insert race-safe: a concurrent creator loses the conflict and
// falls through to the select.
func (s *Store) EnsureActiveSession(ctx context.Context, tenantID string, st session.Type) (*session.Session, bool, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (tenant_id, session_type, active)
		 VALUES ($1, $2, TRUE)
		 ON CONFLICT (tenant_id, session_type) WHERE active DO NOTHING
		 RETURNING `+sessionColumns,
		tenantID, st)

	created, err := scanSession(row)
	if err == nil {
		return &created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("ensure session: %w", err)
	}

	row = s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE tenant_id = $1 AND session_type = $2 AND active`,
		tenantID, st)
	existing, err := scanSession(row)
	if err != nil {
		return nil, false, notFoundWrap(err, "ensure session %s/%s", tenantID, st)
	}
	return &existing, false, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, notFoundWrap(err, "get session %s", id)
	}
	return &sess, nil
}

func (s *Store) UpdateSessionActivity(ctx context.Context, id string, usage session.BudgetUsage, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET t1_used = $2, t2_used = $3, t3_used = $4, last_activity_at = $5
		 WHERE id = $1 AND active`,
		id, usage.T1, usage.T2, usage.T3, at)
	return execExpectOne(tag, err, "update session %s activity", id)
}

func (s *Store) CloseSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET active = FALSE WHERE id = $1 AND active`, id)
	return execExpectOne(tag, err, "close session %s", id)
}

// CloseIdleSessions deactivates sessions with no activity since the cutoff.
// Their PENDING proposals are left for the expiry sweep; nothing is orphaned.
func (s *Store) CloseIdleSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE sessions SET active = FALSE
		 WHERE active AND last_activity_at < $1
		 RETURNING id`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("close idle sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
