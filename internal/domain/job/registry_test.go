package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

func okHandler(jobType model.JobType, msg string) *FuncHandler {
	return NewFuncHandler(jobType, func(context.Context, json.RawMessage, model.JobContext) (model.JobResult, error) {
		return model.Success(nil, msg), nil
	})
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(okHandler("email", "first")))
	require.NoError(t, reg.Register(okHandler("email", "second")))

	h, ok := reg.Lookup("email")
	require.True(t, ok)

	res, err := h.Handle(context.Background(), json.RawMessage(`{}`), model.JobContext{})
	require.NoError(t, err)
	assert.Equal(t, "second", res.Message)
	assert.Equal(t, []model.JobType{"email"}, reg.Types())
}

func TestRegistry_RejectsInvalidHandler(t *testing.T) {
	reg := NewRegistry()
	require.ErrorIs(t, reg.Register(nil), ErrInvalidHandler)
	require.ErrorIs(t, reg.Register(okHandler("Bad Type", "")), ErrInvalidHandler)
	assert.Empty(t, reg.Types())
}

func TestRegistry_Defaults(t *testing.T) {
	reg := NewRegistry()
	h := okHandler("sync", "")
	h.Settings = model.HandlerConfig{MaxConcurrentJobs: 2, DefaultMaxAttempts: 5}
	reg.MustRegister(h)

	assert.Equal(t, 5, reg.Defaults("sync").DefaultMaxAttempts)
	assert.Equal(t, model.HandlerConfig{}, reg.Defaults("missing"))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = reg.Register(okHandler(model.JobType(fmt.Sprintf("type-%d", i%5)), ""))
		}()
		go func() {
			defer wg.Done()
			reg.Lookup("type-1")
			reg.Types()
		}()
	}
	wg.Wait()
	assert.Len(t, reg.Types(), 5)
}

func TestFuncHandler_ValidateDefaultsToNil(t *testing.T) {
	h := okHandler("echo", "")
	require.NoError(t, h.ValidateJobData(json.RawMessage(`{}`)))

	h.Validate = func(json.RawMessage) error { return fmt.Errorf("bad") }
	require.Error(t, h.ValidateJobData(json.RawMessage(`{}`)))
}
