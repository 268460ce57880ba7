// Package approval implements the Approval Gate (C8): HMAC-bound
// approve/reject callback tokens, PENDING/APPROVED/REJECTED/EXPIRED state,
// and the expiry cron task. Notification dispatch is nil-safe, grounded on
// the teacher's pkg/slack.Service ("nil-safe: all methods are no-ops when
// service is nil") so a channel outage never blocks the approval decision
// path itself.
package approval

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
	"github.com/codeready-toolchain/agentctl/internal/store"
)

// RiskLevel is the sensitivity tier of the action requiring approval.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskCritical RiskLevel = "CRITICAL"
)

// Status is an approval request's lifecycle state.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
)

// ErrExpired is returned when a decision is attempted on an
// already-expired approval, per spec §4.8 ("a decision recorded after
// expiry fails with approval_expired").
var ErrExpired = errors.New("approval_expired")

// ErrStateConflict is returned when a decision is attempted on a
// non-pending approval that is not expired either (already decided).
var ErrStateConflict = errors.New("approval_already_decided")

// ErrBadToken is returned when a callback token fails HMAC verification.
var ErrBadToken = errors.New("approval_bad_token")

// Request is the domain view of an approval request.
type Request struct {
	ID           string
	JobID        string
	AgentID      string
	Summary      string
	Detail       string
	RiskLevel    RiskLevel
	Status       Status
	ApproveToken string
	RejectToken  string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Notifier delivers an approval request (and its decision outcome) to a
// channel. Implementations must be fail-open: Notify errors are logged by
// the gate, never returned to the caller that created the approval.
type Notifier interface {
	NotifyApprovalRequested(ctx context.Context, req Request) error
	NotifyApprovalDecided(ctx context.Context, req Request) error
}

// Gate is the Approval Gate.
type Gate struct {
	repo     *store.ApprovalRepository
	hmacKey  []byte
	notifier Notifier // may be nil: no-op
	log      *slog.Logger
}

// New builds a Gate. hmacKey signs callback tokens; notifier may be nil.
func New(repo *store.ApprovalRepository, hmacKey []byte, notifier Notifier) *Gate {
	return &Gate{repo: repo, hmacKey: hmacKey, notifier: notifier, log: slog.With("component", "approval")}
}

// Create records a new PENDING approval request and notifies channels
// (best-effort).
func (g *Gate) Create(ctx context.Context, jobID, agentID, summary, detail string, risk RiskLevel, ttl time.Duration) (Request, error) {
	id := uuid.NewString()
	approveToken, err := g.signToken(id, "a")
	if err != nil {
		return Request{}, err
	}
	rejectToken, err := g.signToken(id, "r")
	if err != nil {
		return Request{}, err
	}

	req := Request{
		ID: id, JobID: jobID, AgentID: agentID, Summary: summary, Detail: detail,
		RiskLevel: risk, Status: StatusPending, ApproveToken: approveToken, RejectToken: rejectToken,
		ExpiresAt: time.Now().Add(ttl),
	}

	notif, _ := json.Marshal(map[string]string{})
	row := store.ApprovalRow{
		ID: req.ID, JobID: jobID, AgentID: agentID, Summary: summary, Detail: detail,
		RiskLevel: string(risk), ApproveToken: approveToken, RejectToken: rejectToken,
		Notifications: notif, ExpiresAt: req.ExpiresAt,
	}
	if err := g.repo.Insert(ctx, row); err != nil {
		return Request{}, err
	}

	g.notify(ctx, req, false)
	return req, nil
}

// signToken builds `apr:{a|r}:<32-hex>` where the opaque portion is a
// random 8-byte nonce followed by the first 8 bytes of an HMAC-SHA256 over
// id, decision and that nonce (16 bytes, 32 hex chars).
func (g *Gate) signToken(id, decision string) (string, error) {
	mac := hmac.New(sha256.New, g.hmacKey)
	mac.Write([]byte(id))
	mac.Write([]byte(":"))
	mac.Write([]byte(decision))

	// Mix in randomness so the token is not derivable from id alone by a
	// party without hmacKey, while remaining independently verifiable.
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return "", ctlerrors.FailedTo("approval", "generate token nonce", err)
	}
	mac.Write(nonce)

	sum := mac.Sum(nil)
	opaque := hex.EncodeToString(append(nonce, sum[:8]...))[:32]
	return fmt.Sprintf("apr:%s:%s", decision, opaque), nil
}

// verifyToken reports whether provided equals the stored token for the
// chosen decision, compared in constant time so timing can't leak validity.
func verifyToken(stored, provided string) bool {
	return hmac.Equal([]byte(stored), []byte(provided))
}

// Decide applies a human decision via the matching callback token.
// Decision must be "a" (approve) or "r" (reject) and token must match the
// stored token for that decision.
func (g *Gate) Decide(ctx context.Context, id, decision, token, reason string) (Request, error) {
	row, err := g.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}

	var stored string
	var newStatus string
	switch decision {
	case "a":
		stored, newStatus = row.ApproveToken, string(StatusApproved)
	case "r":
		stored, newStatus = row.RejectToken, string(StatusRejected)
	default:
		return Request{}, ctlerrors.WithClassification(fmt.Errorf("approval: unknown decision %q", decision), ctlerrors.Permanent)
	}
	if !verifyToken(stored, token) {
		return Request{}, ctlerrors.WithClassification(ErrBadToken, ctlerrors.Permanent)
	}

	if row.Status == string(StatusExpired) || (row.Status == string(StatusPending) && time.Now().After(row.ExpiresAt)) {
		return Request{}, ctlerrors.WithClassification(ErrExpired, ctlerrors.Permanent)
	}

	if err := g.repo.Decide(ctx, id, newStatus, reason); err != nil {
		if errors.Is(err, store.ErrStateConflict) {
			return Request{}, ctlerrors.WithClassification(ErrStateConflict, ctlerrors.Permanent)
		}
		return Request{}, err
	}

	req := toRequest(row)
	req.Status = Status(newStatus)
	g.notify(ctx, req, true)
	return req, nil
}

// DecideAuthenticated applies a human decision made through an already
// authenticated session (the Request Router's approvals endpoint) rather
// than through an unauthenticated channel callback link, so it skips the
// HMAC token check that protects the latter.
func (g *Gate) DecideAuthenticated(ctx context.Context, id, decision, reason string) (Request, error) {
	row, err := g.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}

	var newStatus string
	switch decision {
	case "a":
		newStatus = string(StatusApproved)
	case "r":
		newStatus = string(StatusRejected)
	default:
		return Request{}, ctlerrors.WithClassification(fmt.Errorf("approval: unknown decision %q", decision), ctlerrors.Permanent)
	}

	if row.Status == string(StatusExpired) || (row.Status == string(StatusPending) && time.Now().After(row.ExpiresAt)) {
		return Request{}, ctlerrors.WithClassification(ErrExpired, ctlerrors.Permanent)
	}

	if err := g.repo.Decide(ctx, id, newStatus, reason); err != nil {
		if errors.Is(err, store.ErrStateConflict) {
			return Request{}, ctlerrors.WithClassification(ErrStateConflict, ctlerrors.Permanent)
		}
		return Request{}, err
	}

	req := toRequest(row)
	req.Status = Status(newStatus)
	g.notify(ctx, req, true)
	return req, nil
}

// ExpirePending scans PENDING approvals past their expiry and transitions
// them to EXPIRED, notifying channels. Intended to run as a cron task
// (spec §4.8).
func (g *Gate) ExpirePending(ctx context.Context) error {
	ids, err := g.repo.ExpirePending(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, id := range ids {
		row, err := g.repo.Get(ctx, id)
		if err != nil {
			g.log.Warn("failed to reload expired approval for notification", "id", id, "error", err)
			continue
		}
		req := toRequest(row)
		g.notify(ctx, req, true)
	}
	if len(ids) > 0 {
		g.log.Info("approvals expired", "count", len(ids))
	}
	return nil
}

// CountPending exposes the approval backlog for the metrics gauge.
func (g *Gate) CountPending(ctx context.Context) (int, error) {
	return g.repo.CountPending(ctx)
}

func (g *Gate) notify(ctx context.Context, req Request, decided bool) {
	if g.notifier == nil {
		return
	}
	var err error
	if decided {
		err = g.notifier.NotifyApprovalDecided(ctx, req)
	} else {
		err = g.notifier.NotifyApprovalRequested(ctx, req)
	}
	if err != nil {
		g.log.Warn("approval notification failed", "approval_id", req.ID, "error", err)
	}
}

func toRequest(row store.ApprovalRow) Request {
	return Request{
		ID: row.ID, JobID: row.JobID, AgentID: row.AgentID, Summary: row.Summary, Detail: row.Detail,
		RiskLevel: RiskLevel(row.RiskLevel), Status: Status(row.Status),
		ApproveToken: row.ApproveToken, RejectToken: row.RejectToken,
		ExpiresAt: row.ExpiresAt, CreatedAt: row.CreatedAt,
	}
}
