package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"issuebroker/core"
	"issuebroker/models"
	"issuebroker/services"
)

// DefaultTimeout bounds a gateway call when the options carry no timeout.
const DefaultTimeout = 300 * time.Second

// DispatchService races downstream calls against a wall-clock timer and
// normalizes every outcome into a models.DispatchResult. The downstream
// call is not cancelled on timeout - it is abandoned, and its eventual
// result discarded.
type DispatchService struct{}

func NewDispatchService() *DispatchService {
	return &DispatchService{}
}

type callOutcome struct {
	response *models.AgentResponse
	err      error
}

func (s *DispatchService) Dispatch(
	ctx context.Context,
	opts services.DispatchOptions,
	call func(ctx context.Context) (*models.AgentResponse, error),
) *models.DispatchResult {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	dispatchID := core.NewID("dsp")
	log.Printf("🚀 Dispatching %s to %s (id: %s, timeout: %s)", opts.Name, opts.Route, dispatchID, timeout)
	start := time.Now()

	// Buffered so the abandoned goroutine can still complete after a timeout
	outcomes := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcomes <- callOutcome{err: fmt.Errorf("panic in downstream call: %v", r)}
			}
		}()
		response, err := call(ctx)
		outcomes <- callOutcome{response: response, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-outcomes:
		duration := time.Since(start)
		if outcome.err != nil {
			log.Printf("❌ Dispatch %s failed after %s (id: %s): %v",
				opts.Name, duration.Round(time.Millisecond), dispatchID, outcome.err)
			return &models.DispatchResult{
				ID:      dispatchID,
				Success: false,
				Status:  500,
				Error:   "dispatch_failure",
				Message: outcome.err.Error(),
				Name:    opts.Name,
				Route:   opts.Route,
			}
		}

		response := outcome.response
		if response == nil {
			response = &models.AgentResponse{Success: false, Message: "empty response from agent"}
		}

		status := 200
		if !response.Success {
			status = 500
		}
		log.Printf("✅ Dispatch %s completed in %s (id: %s, success: %t)",
			opts.Name, duration.Round(time.Millisecond), dispatchID, response.Success)
		return &models.DispatchResult{
			ID:      dispatchID,
			Success: response.Success,
			Status:  status,
			Message: response.Message,
			Error:   response.Error,
			Name:    opts.Name,
			Route:   opts.Route,
		}

	case <-timer.C:
		log.Printf("⏰ Dispatch %s timed out after %s (id: %s)",
			opts.Name, time.Since(start).Round(time.Millisecond), dispatchID)
		return &models.DispatchResult{
			ID:      dispatchID,
			Success: false,
			Status:  500,
			Error:   "dispatch_timeout",
			Message: fmt.Sprintf("%s did not respond within %s", opts.Name, timeout),
			Name:    opts.Name,
			Route:   opts.Route,
		}
	}
}
