// Package handlers contains the built-in job handlers.
package handlers

import (
	"context"
	"encoding/json"

	"github.com/target/mmk-jobqueue/internal/domain/job"
	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// EchoJobType completes with its payload as the result. Useful for smoke tests.
const EchoJobType model.JobType = "echo"

// NewEcho returns the echo handler.
func NewEcho() *job.FuncHandler {
	return job.NewFuncHandler(EchoJobType, func(_ context.Context, payload json.RawMessage, _ model.JobContext) (model.JobResult, error) {
		return model.Success(payload, "echo"), nil
	})
}
