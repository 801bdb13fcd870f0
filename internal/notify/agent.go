// Package notify delivers run results to external sinks: an agent-session
// webhook and a GitHub pull-request comment. Delivery is best effort. A sink
// that is not configured is skipped, and a delivery failure is logged as a
// warning; notifications never fail the run that produced them.
package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/stitchcd/stitch/api/schemas"
	"github.com/stitchcd/stitch/internal/config"
)

const (
	agentTimeout       = 10 * time.Second
	agentRetryCount    = 2 // three attempts total
	agentRetryWaitTime = 250 * time.Millisecond
	agentRetryMaxWait  = 2 * time.Second
)

// agentPayload is the compact run summary posted to the agent webhook. It
// carries counts and artifact paths, never diffs or file content.
type agentPayload struct {
	RunID       string    `json:"run_id"`
	Repository  string    `json:"repository,omitempty"`
	RiskLevel   string    `json:"risk_level,omitempty"`
	Findings    int       `json:"findings"`
	Fixes       int       `json:"fixes"`
	Failed      int       `json:"failed"`
	Reports     []string  `json:"reports,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// AgentWebhook posts run summaries to the endpoint configured under
// notify.agent_url, authenticating with the bearer token from
// STITCH_NOTIFY_AGENT_TOKEN.
type AgentWebhook struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// NewAgentWebhook builds the webhook notifier. An empty agent_url yields a
// disabled notifier whose Notify is a no-op.
func NewAgentWebhook(cfg config.NotifyConfig, logger *zap.Logger) *AgentWebhook {
	client := resty.New().
		SetTimeout(agentTimeout).
		SetRetryCount(agentRetryCount).
		SetRetryWaitTime(agentRetryWaitTime).
		SetRetryMaxWaitTime(agentRetryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.AgentToken != "" {
		client.SetAuthToken(cfg.AgentToken)
	}

	return &AgentWebhook{
		client: client,
		url:    cfg.AgentURL,
		logger: logger.Named("agent_webhook"),
	}
}

// Notify posts the run summary. Failures are logged and swallowed so a dead
// webhook cannot fail an otherwise successful run.
func (w *AgentWebhook) Notify(ctx context.Context, env *schemas.ReportEnvelope, reportPaths []string) {
	if w.url == "" {
		w.logger.Debug("Agent webhook not configured, skipping notification")
		return
	}

	payload := buildAgentPayload(env, reportPaths)
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(w.url)
	if err != nil {
		w.logger.Warn("Agent webhook delivery failed, continuing",
			zap.String("url", w.url),
			zap.Error(err))
		return
	}
	if resp.IsError() {
		w.logger.Warn("Agent webhook rejected the notification, continuing",
			zap.String("url", w.url),
			zap.Int("status", resp.StatusCode()),
			zap.Int("attempts", resp.Request.Attempt))
		return
	}

	w.logger.Info("Agent webhook notified",
		zap.String("run_id", env.Run.RunID),
		zap.Int("status", resp.StatusCode()),
		zap.Int("attempts", resp.Request.Attempt))
}

func buildAgentPayload(env *schemas.ReportEnvelope, reportPaths []string) agentPayload {
	payload := agentPayload{
		RunID:       env.Run.RunID,
		Repository:  env.Run.Repository,
		Fixes:       env.Summary.Fixes,
		Failed:      env.Summary.Failed,
		Reports:     reportPaths,
		CompletedAt: env.Run.CompletedAt,
	}
	if env.Review != nil {
		payload.RiskLevel = string(env.Review.RiskLevel)
		payload.Findings = len(env.Review.Findings)
	}
	return payload
}
