package job

import (
	"context"
	"encoding/json"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// Handler executes jobs of a single type.
//
// Handle returns either a JobResult or an error. A non-nil error is translated by the
// executor: validation, fatal and no-handler errors fail the job, anything else is retried.
type Handler interface {
	JobType() model.JobType
	Handle(ctx context.Context, payload json.RawMessage, jc model.JobContext) (model.JobResult, error)
	ValidateJobData(payload json.RawMessage) error
	Config() model.HandlerConfig
}

// HandleFunc is the execution function wrapped by FuncHandler.
type HandleFunc func(ctx context.Context, payload json.RawMessage, jc model.JobContext) (model.JobResult, error)

// FuncHandler adapts plain functions to the Handler interface.
type FuncHandler struct {
	Type     model.JobType
	Fn       HandleFunc
	Validate func(payload json.RawMessage) error
	Settings model.HandlerConfig
}

var _ Handler = (*FuncHandler)(nil)

// NewFuncHandler builds a FuncHandler with no validation and default config.
func NewFuncHandler(jobType model.JobType, fn HandleFunc) *FuncHandler {
	return &FuncHandler{Type: jobType, Fn: fn}
}

func (h *FuncHandler) JobType() model.JobType { return h.Type }

func (h *FuncHandler) Handle(
	ctx context.Context,
	payload json.RawMessage,
	jc model.JobContext,
) (model.JobResult, error) {
	return h.Fn(ctx, payload, jc)
}

func (h *FuncHandler) ValidateJobData(payload json.RawMessage) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate(payload)
}

func (h *FuncHandler) Config() model.HandlerConfig { return h.Settings }
