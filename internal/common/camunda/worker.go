package camunda

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"
)

type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job) error
}

// CamundaWorker owns one job worker subscription. The zbc.Client is shared and closed by its owner.
type CamundaWorker struct {
	worker   worker.JobWorker
	logger   *zap.Logger
	taskType string
}

func NewWorker(
	client zbc.Client,
	taskType string,
	maxJobsActive int,
	timeout time.Duration,
	handler JobHandler,
	logger *zap.Logger,
) *CamundaWorker {
	builder := client.NewJobWorker().
		JobType(taskType).
		Handler(dispatch(handler, logger)).
		MaxJobsActive(maxJobsActive)

	if timeout > 0 {
		builder = builder.Timeout(timeout)
	}

	return &CamundaWorker{
		worker:   builder.Open(),
		logger:   logger,
		taskType: taskType,
	}
}

// dispatch runs one job. A panicking handler is logged and the job is left
// to time out so the broker hands it out again.
func dispatch(handler JobHandler, logger *zap.Logger) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		fields := []zap.Field{
			zap.Int64("jobKey", job.Key),
			zap.String("jobType", job.Type),
			zap.Int64("processInstanceKey", job.ProcessInstanceKey),
		}
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job handler panicked", append(fields, zap.Any("panic", r))...)
			}
		}()

		start := time.Now()
		if err := handler.Handle(client, job); err != nil {
			logger.Error("job handler returned error", append(fields, zap.Error(err))...)
			return
		}
		logger.Debug("job handled", append(fields, zap.Duration("took", time.Since(start)))...)
	}
}

// TaskType is the job type the worker subscribes to.
func (w *CamundaWorker) TaskType() string { return w.taskType }

func (w *CamundaWorker) Start() {
	w.logger.Info("worker started", zap.String("taskType", w.taskType))
}

func (w *CamundaWorker) Stop(ctx context.Context) {
	w.logger.Info("stopping worker", zap.String("taskType", w.taskType))

	done := make(chan struct{})
	go func() {
		w.worker.Close()
		w.worker.AwaitClose()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("worker did not stop before deadline", zap.String("taskType", w.taskType))
	}
}
