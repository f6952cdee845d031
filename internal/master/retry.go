package master

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/antigravity-dev/shipyard/internal/evidence"
	"github.com/antigravity-dev/shipyard/internal/pipeline"
	"github.com/antigravity-dev/shipyard/internal/runstate"
	"github.com/antigravity-dev/shipyard/internal/worker"
)

// backoffDelay computes the inter-attempt delay before retry N, mirroring
// the exponential-with-jitter shape used elsewhere in this codebase's
// dispatch retry paths. attempt is 1-indexed; attempt 1 never delays.
func backoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt <= 1 || base <= 0 {
		return 0
	}
	exponent := attempt - 2
	multiplier := math.Pow(2, float64(exponent))
	delay := time.Duration(float64(base) * multiplier)
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
	return delay + jitter
}

// dispatchWithRetry implements spec.md §4.H's dispatch_with_retry: it
// dispatches stage.Worker through the Worker Registry, retrying on
// exceptions (registry-level errors, panics, timeouts) up to maxRetries
// attempts, and returns the final worker.Result (Done or Failed) without
// ever retrying a domain Failed — that is handed straight to the gate.
func (m *Master) dispatchWithRetry(ctx context.Context, stage pipeline.StageConfig, state *runstate.State, chain *evidence.Chain) (worker.Result, error) {
	maxRetries := m.opts.maxRetries()
	input := m.availableSlices(state)

	attempts := 0
	for {
		attempts++

		if attempts > 1 {
			time.Sleep(backoffDelay(attempts, m.opts.RetryBackoffBase, m.opts.RetryBackoffMax))
		}

		if _, err := chain.Append(evidence.Input{
			Type:     evidence.TypeWorkerStart,
			WorkerID: stage.Worker,
			Stage:    evidence.Stage(stage.ID),
			Data:     map[string]interface{}{"attempt": attempts, "stageId": stage.ID},
		}); err != nil {
			return worker.Result{}, fmt.Errorf("append worker_start: %w", err)
		}

		result, execErr := m.workers.Dispatch(ctx, stage.Worker, input)

		if execErr == nil {
			if _, err := chain.Append(evidence.Input{
				Type:     evidence.TypeWorkerEnd,
				WorkerID: stage.Worker,
				Stage:    evidence.Stage(stage.ID),
				Data:     map[string]interface{}{"status": string(result.Status), "attempt": attempts},
			}); err != nil {
				return worker.Result{}, fmt.Errorf("append worker_end: %w", err)
			}
			return result, nil
		}

		if _, err := chain.Append(evidence.Input{
			Type:     evidence.TypeError,
			WorkerID: stage.Worker,
			Stage:    evidence.Stage(stage.ID),
			Data:     map[string]interface{}{"error": execErr.Error(), "attempt": attempts},
		}); err != nil {
			return worker.Result{}, fmt.Errorf("append error entry: %w", err)
		}

		if attempts >= maxRetries {
			reason := fmt.Sprintf("retries exhausted (%d/%d): %s", attempts, maxRetries, execErr.Error())
			if _, err := chain.Append(evidence.Input{
				Type:     evidence.TypeWorkerEnd,
				WorkerID: stage.Worker,
				Stage:    evidence.Stage(stage.ID),
				Data:     map[string]interface{}{"status": string(worker.StatusFailed), "reason": reason, "attempt": attempts},
			}); err != nil {
				return worker.Result{}, fmt.Errorf("append terminal worker_end: %w", err)
			}
			return worker.Failed(reason), nil
		}

		if _, err := chain.Append(evidence.Input{
			Type:     evidence.TypeNote,
			WorkerID: stage.Worker,
			Stage:    evidence.Stage(stage.ID),
			Data:     map[string]interface{}{"event": "retry_scheduled", "attempt": attempts, "maxRetries": maxRetries},
		}); err != nil {
			return worker.Result{}, fmt.Errorf("append retry_scheduled note: %w", err)
		}
		m.tel.RecordWorkerRetry(stage.Worker)
	}
}
