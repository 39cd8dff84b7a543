// internal/workers/shopping/complete-search/handler.go
package completesearch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	apperrors "shopping-agent/internal/common/errors"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/common/metrics"
	"shopping-agent/internal/common/validation"
	"shopping-agent/internal/orchestrator"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "complete-shopping-search"

// Searcher runs the full fan-out search. *orchestrator.Orchestrator satisfies it.
type Searcher interface {
	SearchProductComplete(ctx context.Context, query string) (*orchestrator.Result, error)
}

type Handler struct {
	config   *Config
	searcher Searcher
	schema   *validation.Schema
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, searcher Searcher, log logger.Logger) (*Handler, error) {
	schema, err := validation.CompileMap(TaskType, inputSchema)
	if err != nil {
		return nil, err
	}
	l := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		searcher: searcher,
		schema:   schema,
		errors:   apperrors.NewErrorHandler(l),
		logger:   l,
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
		h.logger.Warn("worker disabled by configuration", nil)
		return h.fail(ctx, client, job, apperrors.NewConfigInvalidError(TaskType+" is disabled"))
	}

	input, err := h.parseInput(job.GetVariables())
	if err != nil {
		return h.fail(ctx, client, job, err)
	}

	output, err := h.execute(ctx, input)
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

func (h *Handler) parseInput(variables string) (*Input, error) {
	if res := h.schema.ValidateBytes([]byte(variables)); !res.Valid {
		return nil, apperrors.NewJobInputInvalidError(TaskType, res.Error())
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewJobInputInvalidError(TaskType, err.Error())
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	query := strings.TrimSpace(input.ProductQuery)
	if query == "" {
		return nil, apperrors.NewJobInputInvalidError(TaskType, "productQuery is empty")
	}

	res, err := h.searcher.SearchProductComplete(ctx, query)
	if err != nil {
		if _, ok := apperrors.AsStandardError(err); ok {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewTimeoutError("orchestrator", err)
		}
		return nil, apperrors.NewExternalServiceError("orchestrator", err)
	}

	h.logger.Info("complete search finished", map[string]interface{}{
		"runId":    res.RunID,
		"category": res.Category,
		"duration": res.Duration.String(),
	})

	return &Output{
		RunID:          res.RunID,
		ProductQuery:   res.ProductQuery,
		Category:       res.Category,
		ProductResults: res.ProductResults,
		CashbackData:   res.CashbackData,
		CreditCardData: res.CreditCardData,
		FinalResults:   res.FinalResults,
		DurationMs:     res.Duration.Milliseconds(),
	}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) error {
	res := h.errors.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(res.Error.Code)).Inc()
	return err
}
