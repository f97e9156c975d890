package http

import (
	"context"
	"net/http"

	"github.com/steward-labs/steward/internal/domain/proposal"
	"github.com/steward-labs/steward/internal/domain/session"
	"github.com/steward-labs/steward/internal/domain/tool"
	"github.com/steward-labs/steward/internal/domain/turn"
	"github.com/steward-labs/steward/internal/middleware"
	"github.com/steward-labs/steward/internal/service"
)

// Handlers bundles the HTTP handlers and their service dependencies.
type Handlers struct {
	Orchestrator *service.Orchestrator
	Proposals    *service.ProposalService
	Sessions     *service.SessionService
	Registry     *tool.Registry

	// HealthCheck pings the backing store; nil means always healthy.
	HealthCheck func(ctx context.Context) error
}

// HandleTurn handles POST /api/v1/turns.
func (h *Handlers) HandleTurn(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[turn.Request](w, r)
	if !ok {
		return
	}
	req.TenantID = middleware.TenantIDFromContext(r.Context())
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	res, err := h.Orchestrator.HandleTurn(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetSession handles GET /api/v1/sessions/{id}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ListSessionProposals handles GET /api/v1/sessions/{id}/proposals.
// Only PENDING proposals are listed; ?tier=T2|T3 filters by tier.
func (h *Handlers) ListSessionProposals(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	tier := tool.TrustTier(r.URL.Query().Get("tier"))
	if tier != "" && !tier.Valid() {
		writeError(w, http.StatusBadRequest, "unknown tier")
		return
	}

	pending, err := h.Proposals.ListPending(r.Context(), sess.TenantID, sess.ID, tier)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	if pending == nil {
		pending = []proposal.Proposal{}
	}
	writeJSON(w, http.StatusOK, pending)
}

// CloseSession handles POST /api/v1/sessions/{id}/close.
func (h *Handlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	if err := h.Orchestrator.CloseSession(r.Context(), sess.ID, "user closed"); err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type confirmRequest struct {
	SessionID string `json:"session_id"`
}

// ConfirmProposal handles POST /api/v1/proposals/{id}/confirm. The body
// names the session acting on the proposal; only the owning session may
// confirm.
func (h *Handlers) ConfirmProposal(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[confirmRequest](w, r)
	if !ok {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if !h.ownsProposal(w, r, id) {
		return
	}

	p, err := h.Orchestrator.ConfirmProposal(r.Context(), id, req.SessionID)
	if err != nil {
		writeDomainError(w, err, "proposal not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RejectProposal handles POST /api/v1/proposals/{id}/reject.
func (h *Handlers) RejectProposal(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[confirmRequest](w, r)
	if !ok {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if !h.ownsProposal(w, r, id) {
		return
	}

	p, err := h.Orchestrator.RejectProposal(r.Context(), id, req.SessionID)
	if err != nil {
		writeDomainError(w, err, "proposal not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type toolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Tier        tool.TrustTier `json:"tier"`
}

// ListTools handles GET /api/v1/tools.
func (h *Handlers) ListTools(w http.ResponseWriter, _ *http.Request) {
	all := h.Registry.All()
	out := make([]toolInfo, 0, len(all))
	for _, t := range all {
		out = append(out, toolInfo{Name: t.Name, Description: t.Description, Tier: t.Tier})
	}
	writeJSON(w, http.StatusOK, out)
}

// Healthz handles GET /healthz.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.HealthCheck != nil {
		if err := h.HealthCheck(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ownedSession loads the {id} session and verifies it belongs to the request
// tenant. A foreign session reads as not-found.
func (h *Handlers) ownedSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.Sessions.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "session not found")
		return nil, false
	}
	if sess.TenantID != middleware.TenantIDFromContext(r.Context()) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// ownsProposal verifies the proposal belongs to the request tenant.
func (h *Handlers) ownsProposal(w http.ResponseWriter, r *http.Request, id string) bool {
	p, err := h.Proposals.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "proposal not found")
		return false
	}
	if p.TenantID != middleware.TenantIDFromContext(r.Context()) {
		writeError(w, http.StatusNotFound, "proposal not found")
		return false
	}
	return true
}
