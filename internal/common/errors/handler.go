// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler reports failed shopping jobs back to the broker.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Resolution says how a failed job is reported.
type Resolution struct {
	Error *StandardError
	BPMN  *BPMNError
	// Retry fails the job with Retries left; otherwise a BPMN error is thrown.
	Retry   bool
	Retries int32
}

// Resolve decides between retrying a job and throwing a BPMN error.
// remaining is the retry budget the broker reported on the job.
func Resolve(err error, remaining int32) Resolution {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)

	res := Resolution{Error: stdErr, BPMN: bpmnErr}
	if bpmnErr.Retries > 0 && remaining > 0 {
		// The broker's budget is never raised.
		res.Retry = true
		res.Retries = max(min(remaining-1, int32(bpmnErr.Retries)), 0)
	}
	return res
}

// Normalize turns any error into a StandardError. Context deadlines count as
// timeouts and cancellation as a retryable interruption.
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError("job", err)
	case stderrors.Is(err, context.Canceled):
		return NewExternalServiceError("worker", err)
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Err:       err,
	}
}

// ReportTimeout bounds a single job command sent back to the broker.
const ReportTimeout = 10 * time.Second

// ReportContext derives the context used to send a job command. It keeps the
// values of ctx but not its deadline, so a job that ran out of time can still
// be failed or completed.
func ReportContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), ReportTimeout)
}

// HandleJobError fails the job with retries for retryable codes and throws a BPMN error otherwise.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) Resolution {
	res := Resolve(err, job.Retries)
	h.logError(job, res)

	vars, marshalErr := json.Marshal(res.BPMN.ToErrorVariables())

	ctx, cancel := ReportContext(ctx)
	defer cancel()

	var sendErr error
	if res.Retry {
		cmd := client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(res.Retries).
			ErrorMessage(res.BPMN.Message)
		sent := false
		if marshalErr == nil {
			if withVars, err := cmd.VariablesFromString(string(vars)); err == nil {
				_, sendErr = withVars.Send(ctx)
				sent = true
			}
		}
		if !sent {
			_, sendErr = cmd.Send(ctx)
		}
		h.logSendError(job, "fail", sendErr)
		return res
	}

	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(res.BPMN.Code).
		ErrorMessage(res.BPMN.Message)
	sent := false
	if marshalErr == nil {
		if withVars, err := cmd.VariablesFromString(string(vars)); err == nil {
			_, sendErr = withVars.Send(ctx)
			sent = true
		}
	}
	if !sent {
		_, sendErr = cmd.Send(ctx)
	}
	h.logSendError(job, "throwError", sendErr)
	return res
}

func (h *ErrorHandler) logSendError(job entities.Job, command string, err error) {
	if err == nil {
		return
	}
	h.logger.Error("Failed to report job failure", map[string]interface{}{
		"jobKey":  job.Key,
		"jobType": job.Type,
		"command": command,
		"error":   err.Error(),
	})
}

func (h *ErrorHandler) logError(job entities.Job, res Resolution) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(res.Error.Code),
		"bpmnErrorCode":    res.BPMN.Code,
		"message":          res.BPMN.Message,
		"details":          res.Error.Details,
		"retry":            res.Retry,
		"retries":          res.Retries,
		"errorCategory":    GetErrorCategory(res.Error.Code),
		"workflowInstance": job.ProcessInstanceKey,
	})
}
