package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pario-ai/costdesk/pkg/apperr"
	"github.com/pario-ai/costdesk/pkg/logging"
	"github.com/pario-ai/costdesk/pkg/metrics"
	"github.com/pario-ai/costdesk/pkg/models"
	"github.com/pario-ai/costdesk/pkg/quota"
)

// Gate admits or rejects a query before it is sent.
type Gate interface {
	CheckAndConsume(ctx context.Context) (models.QuotaGrant, error)
}

// Recorder persists activity entries.
type Recorder interface {
	Log(ctx context.Context, entry models.ActivityEntry) error
}

// Reply is what Ask returns for an admitted query.
type Reply struct {
	Turns []models.ChatTurn `json:"turns"`
	Grant models.QuotaGrant `json:"grant"`
	Note  string            `json:"warning,omitempty"`
}

// Assistant runs a user message through the quota gate and the pipeline.
type Assistant struct {
	gate     Gate
	pipeline *Pipeline
	recorder Recorder
	log      *zap.Logger
}

// NewAssistant creates an Assistant. recorder may be nil.
func NewAssistant(gate Gate, pipeline *Pipeline, recorder Recorder, log *zap.Logger) *Assistant {
	return &Assistant{
		gate:     gate,
		pipeline: pipeline,
		recorder: recorder,
		log:      logging.OrNop(log),
	}
}

// Pipeline returns the underlying pipeline.
func (a *Assistant) Pipeline() *Pipeline {
	return a.pipeline
}

// Ask trims input, consumes one query and sends it. Quota rejections and
// empty input are returned as errors and never reach the endpoint.
func (a *Assistant) Ask(ctx context.Context, input string) (Reply, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return Reply{}, ErrEmptyQuery
	}

	grant, err := a.gate.CheckAndConsume(ctx)
	if err != nil {
		var exceeded *quota.ExceededError
		if errors.As(err, &exceeded) {
			metrics.QuotaRejectionsTotal.WithLabelValues(string(exceeded.Tier)).Inc()
		}
		a.record(ctx, models.ActivityEntry{
			Kind:    models.ActivityChat,
			Subject: query,
			Outcome: string(apperr.KindOf(err)),
			Detail:  err.Error(),
		})
		return Reply{}, err
	}

	ex, err := a.pipeline.send(ctx, query)
	if err != nil {
		return Reply{}, err
	}

	a.log.Info("chat query answered",
		zap.String("outcome", ex.outcome),
		zap.Int("rows", ex.rows),
		zap.Int("count", grant.Count),
		zap.Int("limit", grant.Limit),
		zap.Duration("latency", ex.latency),
	)

	entry := models.ActivityEntry{
		Kind:      models.ActivityChat,
		Subject:   query,
		Outcome:   ex.outcome,
		Rows:      ex.rows,
		LatencyMs: ex.latency.Milliseconds(),
	}
	if ex.rows == 0 && len(ex.turns) > 0 {
		entry.Detail = ex.turns[0].Text
	}
	a.record(ctx, entry)

	return Reply{Turns: ex.turns, Grant: grant, Note: grant.Warning()}, nil
}

func (a *Assistant) record(ctx context.Context, entry models.ActivityEntry) {
	if a.recorder == nil {
		return
	}
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()

	if err := a.recorder.Log(context.WithoutCancel(ctx), entry); err != nil {
		a.log.Warn("activity log error", zap.Error(err))
	}
}
