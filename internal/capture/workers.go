package capture

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/dtnitsch/post-capture/models"
)

const (
	ErrorTypeInternal = "internal_error"
	ErrorTypeSkipped  = "skipped"
)

// ExecFunc runs one request. A non-nil fatal error stops the batch once the
// current wave has been collected.
type ExecFunc func(ctx context.Context, index int, req models.CaptureRequest) (result models.CaptureResult, fatal error)

// RunBatch processes reqs in waves of at most concurrency items. Every item in
// a wave runs in its own goroutine and the next wave starts only after the
// whole wave finished. Results are stored by input index, so the returned
// slice always has len(reqs) entries in input order. Items never started
// because of a fatal error or cancellation are reported as skipped failures.
func RunBatch(ctx context.Context, logger *slog.Logger, reqs []models.CaptureRequest, concurrency int, exec ExecFunc) ([]models.CaptureResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]models.CaptureResult, len(reqs))
	fatals := make([]error, len(reqs))

	var stopErr error
	next := 0
	for wave := 1; next < len(reqs); wave++ {
		if err := ctx.Err(); err != nil {
			stopErr = fmt.Errorf("batch interrupted: %w", err)
			break
		}

		end := min(next+concurrency, len(reqs))
		logger.Info("Starting wave", "wave", wave, "first", next, "size", end-next)

		var wg sync.WaitGroup
		for i := next; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], fatals[i] = runOne(ctx, logger, i, reqs[i], exec)
			}(i)
		}
		wg.Wait()

		for i := next; i < end; i++ {
			if fatals[i] != nil && stopErr == nil {
				stopErr = fatals[i]
			}
		}
		next = end
		if stopErr != nil {
			logger.Error("Stopping batch after wave", "wave", wave, "error", stopErr)
			break
		}
	}

	for i := next; i < len(reqs); i++ {
		results[i] = models.CaptureResult{
			SourceURL:    reqs[i].URL,
			ErrorType:    ErrorTypeSkipped,
			ErrorMessage: fmt.Sprintf("not attempted: %v", stopErr),
		}
	}
	return results, stopErr
}

// runOne turns a panic inside exec into a failed result for that item only.
func runOne(ctx context.Context, logger *slog.Logger, index int, req models.CaptureRequest, exec ExecFunc) (result models.CaptureResult, fatal error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Capture panicked", "index", index, "url", req.URL, "panic", r, "stack", string(debug.Stack()))
			result = models.CaptureResult{
				SourceURL:    req.URL,
				ErrorType:    ErrorTypeInternal,
				ErrorMessage: fmt.Sprintf("panic: %v", r),
			}
			fatal = nil
		}
	}()
	return exec(ctx, index, req)
}
