package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/steward-labs/steward/internal/domain"
	"github.com/steward-labs/steward/internal/domain/session"
	"github.com/steward-labs/steward/internal/port/audit"
	"github.com/steward-labs/steward/internal/port/broadcast"
	"github.com/steward-labs/steward/internal/port/cache"
	"github.com/steward-labs/steward/internal/port/database"
)

// SessionService manages session lifecycle: the one-active-per-surface
// invariant, activity tracking, explicit close, and the idle reaper. Active
// session lookups are fronted by a short-TTL L1 cache since every turn
// resolves one.
type SessionService struct {
	store       database.Store
	cache       cache.Cache
	cacheTTL    time.Duration
	publisher   audit.Publisher
	broadcaster broadcast.Broadcaster
	idleTTL     time.Duration
	now         func() time.Time // for testing
}

// NewSessionService wires the session lifecycle service. cache, publisher,
// and broadcaster may be nil.
func NewSessionService(store database.Store, c cache.Cache, cacheTTL time.Duration, publisher audit.Publisher, broadcaster broadcast.Broadcaster, idleTTL time.Duration) *SessionService {
	return &SessionService{
		store:       store,
		cache:       c,
		cacheTTL:    cacheTTL,
		publisher:   publisher,
		broadcaster: broadcaster,
		idleTTL:     idleTTL,
		now:         time.Now,
	}
}

func activeSessionKey(tenantID string, st session.Type) string {
	return "session:active:" + tenantID + ":" + string(st)
}

// EnsureActive returns the active session for (tenant, type), creating one if
// none exists.
func (s *SessionService) EnsureActive(ctx context.Context, tenantID string, st session.Type) (*session.Session, error) {
	key := activeSessionKey(tenantID, st)
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var cached session.Session
			if json.Unmarshal(data, &cached) == nil && cached.Active {
				return &cached, nil
			}
		}
	}

	sess, created, err := s.store.EnsureActiveSession(ctx, tenantID, st)
	if err != nil {
		return nil, err
	}
	if created {
		publishAudit(ctx, s.publisher, SubjectSessionOpened, AuditEvent{
			TenantID:  sess.TenantID,
			SessionID: sess.ID,
			At:        s.now(),
		})
	}

	s.cacheSession(ctx, key, sess)
	return sess, nil
}

// Get returns one session by ID, active or not.
func (s *SessionService) Get(ctx context.Context, id string) (*session.Session, error) {
	return s.store.GetSession(ctx, id)
}

// Touch records the turn's budget usage and bumps the session's activity
// timestamp.
func (s *SessionService) Touch(ctx context.Context, sess *session.Session, usage session.BudgetUsage) error {
	at := s.now()
	if err := s.store.UpdateSessionActivity(ctx, sess.ID, usage, at); err != nil {
		return err
	}
	sess.TurnUsage = usage
	sess.LastActivityAt = at
	s.cacheSession(ctx, activeSessionKey(sess.TenantID, sess.Type), sess)
	return nil
}

// Close deactivates a session. Its PENDING proposals are failed first so
// nothing can be confirmed against a dead conversation. Closed sessions and
// their proposals stay in the store as the audit trail.
func (s *SessionService) Close(ctx context.Context, id, reason string, proposals *ProposalService) error {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if !sess.Active {
		return fmt.Errorf("close session %s: %w", id, domain.ErrSessionClosed)
	}

	if _, err := proposals.FailPending(ctx, sess.TenantID, sess.ID, "", "session closed"); err != nil {
		slog.Warn("fail pending on close", "session_id", id, "error", err)
	}

	if err := s.store.CloseSession(ctx, id); err != nil {
		return err
	}
	s.dropFromCache(ctx, sess)
	s.announceClosed(ctx, sess, reason)
	return nil
}

// ReapIdle closes sessions with no activity for idleTTL and fails their
// pending proposals. Returns the closed session IDs.
func (s *SessionService) ReapIdle(ctx context.Context, proposals *ProposalService) ([]string, error) {
	cutoff := s.now().Add(-s.idleTTL)
	ids, err := s.store.CloseIdleSessions(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		sess, err := s.store.GetSession(ctx, id)
		if err != nil {
			slog.Warn("load reaped session", "session_id", id, "error", err)
			continue
		}
		if _, err := proposals.FailPending(ctx, sess.TenantID, sess.ID, "", "session expired"); err != nil {
			slog.Warn("fail pending on reap", "session_id", id, "error", err)
		}
		s.dropFromCache(ctx, sess)
		s.announceClosed(ctx, sess, "idle timeout")
	}
	return ids, nil
}

// RunReaper sweeps idle sessions every period until ctx is cancelled.
func (s *SessionService) RunReaper(ctx context.Context, period time.Duration, proposals *ProposalService) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := s.ReapIdle(ctx, proposals)
			if err != nil {
				slog.Error("session reaper sweep", "error", err)
				continue
			}
			if len(ids) > 0 {
				slog.Info("reaped idle sessions", "count", len(ids))
			}
		}
	}
}

func (s *SessionService) cacheSession(ctx context.Context, key string, sess *session.Session) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		slog.Debug("cache session", "key", key, "error", err)
	}
}

func (s *SessionService) dropFromCache(ctx context.Context, sess *session.Session) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, activeSessionKey(sess.TenantID, sess.Type)); err != nil {
		slog.Debug("drop session from cache", "session_id", sess.ID, "error", err)
	}
}

func (s *SessionService) announceClosed(ctx context.Context, sess *session.Session, reason string) {
	publishAudit(ctx, s.publisher, SubjectSessionClosed, AuditEvent{
		TenantID:  sess.TenantID,
		SessionID: sess.ID,
		Reason:    reason,
		At:        s.now(),
	})
	if s.broadcaster != nil {
		s.broadcaster.BroadcastEventToTenant(ctx, sess.TenantID, broadcast.EventSessionClosed, broadcast.SessionClosedEvent{
			SessionID: sess.ID,
			Reason:    reason,
		})
	}
}
