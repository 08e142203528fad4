package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rryowa/authservice/internal/models"
)

type Verdict int

const (
	VerdictContinue Verdict = iota
	VerdictCompromised
	VerdictExpired
)

func (v Verdict) String() string {
	switch v {
	case VerdictContinue:
		return "continue"
	case VerdictCompromised:
		return "compromised"
	case VerdictExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// IPPolicy decides whether a change of client IP since token issuance is
// acceptable.
type IPPolicy interface {
	AllowIP(ctx context.Context, claims *models.SessionClaims, current models.ClientMetadata, now time.Time) bool
}

// ReportIPChange accepts every IP change and only reports it to the notifier.
// It is the default policy.
type ReportIPChange struct {
	Notifier Notifier
}

func (p ReportIPChange) AllowIP(ctx context.Context, claims *models.SessionClaims, current models.ClientMetadata, now time.Time) bool {
	if claims.IPAddress != current.IPAddress && p.Notifier != nil {
		p.Notifier.Notify(ctx, models.AuthEvent{
			Type:      models.EventIPChange,
			UserID:    claims.UserID,
			Username:  claims.Username,
			OldIP:     claims.IPAddress,
			NewIP:     current.IPAddress,
			UserAgent: current.UserAgent,
			At:        now.UTC(),
		})
	}
	return true
}

// StrictIP rejects any IP change.
type StrictIP struct{}

func (StrictIP) AllowIP(_ context.Context, claims *models.SessionClaims, current models.ClientMetadata, _ time.Time) bool {
	return claims.IPAddress == current.IPAddress
}

// SessionMonitor evaluates every authenticated request independently of token
// validity. It fails closed: missing context or a panic during evaluation
// yields VerdictCompromised.
type SessionMonitor struct {
	maxIdle  time.Duration
	ipPolicy IPPolicy
	log      *zap.SugaredLogger
}

func NewSessionMonitor(maxIdle time.Duration, ipPolicy IPPolicy, log *zap.SugaredLogger) *SessionMonitor {
	if ipPolicy == nil {
		ipPolicy = ReportIPChange{}
	}
	return &SessionMonitor{
		maxIdle:  maxIdle,
		ipPolicy: ipPolicy,
		log:      log,
	}
}

func (m *SessionMonitor) Evaluate(
	ctx context.Context,
	claims *models.SessionClaims,
	current models.ClientMetadata,
	now time.Time,
) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorw("session evaluation panicked", "panic", r)
			verdict = VerdictCompromised
		}
	}()

	if claims == nil || !claims.HasSessionContext {
		return VerdictCompromised
	}

	if !UserAgentMatches(claims.UserAgent, current.UserAgent) {
		m.log.Warnw("user agent drift", "userID", claims.UserID)
		return VerdictCompromised
	}

	if !m.ipPolicy.AllowIP(ctx, claims, current, now) {
		m.log.Warnw("ip drift rejected", "userID", claims.UserID)
		return VerdictCompromised
	}

	if now.Sub(claims.LastActivity) > m.maxIdle {
		return VerdictExpired
	}

	return VerdictContinue
}

// UserAgentMatches reports whether the first whitespace-delimited token of the
// stored user agent occurs in the current one.
func UserAgentMatches(stored, current string) bool {
	fields := strings.Fields(stored)
	if len(fields) == 0 {
		return false
	}
	return strings.Contains(current, fields[0])
}
