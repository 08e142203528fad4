package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rryowa/authservice/internal/models"
)

func sessionClaims(now time.Time) *models.SessionClaims {
	return &models.SessionClaims{
		UserID:            "u1",
		Username:          "alice",
		IPAddress:         "203.0.113.7",
		UserAgent:         "Mozilla/5.0 Chrome",
		LastActivity:      now,
		HasSessionContext: true,
	}
}

type panickingPolicy struct{}

func (panickingPolicy) AllowIP(context.Context, *models.SessionClaims, models.ClientMetadata, time.Time) bool {
	panic("boom")
}

func TestSessionMonitorEvaluate(t *testing.T) {
	t.Parallel()

	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	same := models.ClientMetadata{UserAgent: "Mozilla/5.0 Chrome/120.0", IPAddress: "203.0.113.7"}

	tests := []struct {
		name    string
		policy  IPPolicy
		claims  func() *models.SessionClaims
		current models.ClientMetadata
		now     time.Time
		want    Verdict
	}{
		{
			name:    "same client",
			claims:  func() *models.SessionClaims { return sessionClaims(issued) },
			current: same,
			now:     issued.Add(time.Minute),
			want:    VerdictContinue,
		},
		{
			name:    "user agent drift",
			claims:  func() *models.SessionClaims { return sessionClaims(issued) },
			current: models.ClientMetadata{UserAgent: "curl/8.0", IPAddress: "203.0.113.7"},
			now:     issued.Add(time.Minute),
			want:    VerdictCompromised,
		},
		{
			name: "missing session context",
			claims: func() *models.SessionClaims {
				c := sessionClaims(issued)
				c.HasSessionContext = false
				return c
			},
			current: same,
			now:     issued,
			want:    VerdictCompromised,
		},
		{
			name:    "nil claims",
			claims:  func() *models.SessionClaims { return nil },
			current: same,
			now:     issued,
			want:    VerdictCompromised,
		},
		{
			name:    "exactly 24 hours idle",
			claims:  func() *models.SessionClaims { return sessionClaims(issued) },
			current: same,
			now:     issued.Add(24 * time.Hour),
			want:    VerdictContinue,
		},
		{
			name:    "stale",
			claims:  func() *models.SessionClaims { return sessionClaims(issued) },
			current: same,
			now:     issued.Add(24*time.Hour + time.Second),
			want:    VerdictExpired,
		},
		{
			name:    "ip change is allowed by default",
			claims:  func() *models.SessionClaims { return sessionClaims(issued) },
			current: models.ClientMetadata{UserAgent: same.UserAgent, IPAddress: "198.51.100.1"},
			now:     issued,
			want:    VerdictContinue,
		},
		{
			name:    "ip change with strict policy",
			policy:  StrictIP{},
			claims:  func() *models.SessionClaims { return sessionClaims(issued) },
			current: models.ClientMetadata{UserAgent: same.UserAgent, IPAddress: "198.51.100.1"},
			now:     issued,
			want:    VerdictCompromised,
		},
		{
			name:    "panic fails closed",
			policy:  panickingPolicy{},
			claims:  func() *models.SessionClaims { return sessionClaims(issued) },
			current: same,
			now:     issued,
			want:    VerdictCompromised,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := NewSessionMonitor(24*time.Hour, tt.policy, zap.NewNop().Sugar())
			got := m.Evaluate(context.Background(), tt.claims(), tt.current, tt.now)
			assert.Equal(t, tt.want, got, "got %s", got)
		})
	}
}

func TestReportIPChangeNotifies(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewSessionMonitor(24*time.Hour, ReportIPChange{Notifier: notifier}, zap.NewNop().Sugar())

	evaluatedAt := issued.Add(2 * time.Hour)
	verdict := m.Evaluate(context.Background(), sessionClaims(issued), models.ClientMetadata{
		UserAgent: "Mozilla/5.0 Chrome",
		IPAddress: "198.51.100.1",
	}, evaluatedAt)
	assert.Equal(t, VerdictContinue, verdict)

	events := notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventIPChange, events[0].Type)
	assert.Equal(t, "203.0.113.7", events[0].OldIP)
	assert.Equal(t, "198.51.100.1", events[0].NewIP)
	assert.True(t, evaluatedAt.Equal(events[0].At), "event stamped %s", events[0].At)
}

func TestUserAgentMatches(t *testing.T) {
	t.Parallel()

	assert.True(t, UserAgentMatches("Mozilla/5.0 Chrome", "Mozilla/5.0 (X11) Firefox"))
	assert.True(t, UserAgentMatches("curl/8.0", "curl/8.0"))
	assert.False(t, UserAgentMatches("Mozilla/5.0 Chrome", "curl/8.0"))
	assert.False(t, UserAgentMatches("", "curl/8.0"))
	assert.False(t, UserAgentMatches("   ", "curl/8.0"))
}

func TestVerdictString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "continue", VerdictContinue.String())
	assert.Equal(t, "compromised", VerdictCompromised.String())
	assert.Equal(t, "expired", VerdictExpired.String())
}
