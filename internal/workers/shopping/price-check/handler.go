// internal/workers/shopping/price-check/handler.go
package pricecheck

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "shopping-agent/internal/common/errors"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/common/metrics"
	"shopping-agent/internal/common/validation"
	"shopping-agent/internal/tracker"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "price-check"

// Checker runs single price checks. *tracker.Tracker satisfies it.
type Checker interface {
	Session(ctx context.Context, id int64) (*tracker.Session, error)
	Check(ctx context.Context, sessionID int64, query string) (*tracker.CheckResult, error)
}

type Handler struct {
	config  *Config
	checker Checker
	schema  *validation.Schema
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(config *Config, checker Checker, log logger.Logger) (*Handler, error) {
	schema, err := validation.CompileMap(TaskType, inputSchema)
	if err != nil {
		return nil, err
	}
	l := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		checker: checker,
		schema:  schema,
		errors:  apperrors.NewErrorHandler(l),
		logger:  l,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.GetKey(),
		"workflowKey": job.GetProcessInstanceKey(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if !h.config.Enabled {
		return h.fail(ctx, client, job, apperrors.NewConfigInvalidError(TaskType+" is disabled"))
	}

	var input Input
	if res := h.schema.ValidateBytes([]byte(job.GetVariables())); !res.Valid {
		return h.fail(ctx, client, job, apperrors.NewJobInputInvalidError(TaskType, res.Error()))
	}
	if err := json.Unmarshal([]byte(job.GetVariables()), &input); err != nil {
		return h.fail(ctx, client, job, apperrors.NewJobInputInvalidError(TaskType, err.Error()))
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		return h.fail(ctx, client, job, err)
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		return h.fail(ctx, client, job, err)
	}
	sendCtx, sendCancel := apperrors.ReportContext(ctx)
	defer sendCancel()
	if _, err := cmd.Send(sendCtx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return err
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	return nil
}

// execute checks an active session once. An empty productQuery falls back to
// the session's own query.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	sess, err := h.checker.Session(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != tracker.StatusActive {
		return nil, apperrors.NewSessionNotActiveError(sess.ID)
	}

	query := strings.TrimSpace(input.ProductQuery)
	if query == "" {
		query = sess.ProductQuery
	}

	res, err := h.checker.Check(ctx, sess.ID, query)
	if err != nil {
		if _, ok := apperrors.AsStandardError(err); ok {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, apperrors.NewTimeoutError("price-search", err)
		}
		return nil, apperrors.NewExternalServiceError("price-search", err)
	}

	out := &Output{
		SessionID:    sess.ID,
		RecordsSaved: res.RecordsSaved,
		Alerts:       make([]AlertOutput, 0, len(res.Alerts)),
		AlertCount:   len(res.Alerts),
	}
	for _, a := range res.Alerts {
		direction := "up"
		if a.Dropped() {
			direction = "down"
		}
		out.Alerts = append(out.Alerts, AlertOutput{
			Retailer:      a.Retailer,
			OldPrice:      a.OldPrice,
			NewPrice:      a.NewPrice,
			ChangePercent: a.ChangePercent,
			Direction:     direction,
		})
	}

	h.logger.Info("price check finished", map[string]interface{}{
		"sessionId":    sess.ID,
		"recordsSaved": out.RecordsSaved,
		"alerts":       out.AlertCount,
	})
	return out, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) error {
	res := h.errors.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(res.Error.Code)).Inc()
	return err
}
