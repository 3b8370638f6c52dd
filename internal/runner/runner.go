package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/gulubao/GOT-OCR2.0/internal/domain"
)

var (
	ErrTimeout      = errors.New("ocr process timed out")
	ErrBusy         = errors.New("ocr capacity exhausted, try again later")
	ErrEmptyCommand = errors.New("empty ocr command")
)

type Runner interface {
	Run(ctx context.Context, argv []string) (*domain.RunResult, error)
}

// At most maxConcurrent children run at once; a caller waits up to
// queueTimeout for a slot.
type ProcessRunner struct {
	sem          *semaphore.Weighted
	timeout      time.Duration
	queueTimeout time.Duration
	waitDelay    time.Duration
	log          *zap.Logger
}

func NewProcessRunner(maxConcurrent int64, timeout, queueTimeout time.Duration, log *zap.Logger) *ProcessRunner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ProcessRunner{
		sem:          semaphore.NewWeighted(maxConcurrent),
		timeout:      timeout,
		queueTimeout: queueTimeout,
		waitDelay:    5 * time.Second,
		log:          log,
	}
}

// A non-zero exit is reported through the result, not as an error.
func (r *ProcessRunner) Run(ctx context.Context, argv []string) (*domain.RunResult, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrEmptyCommand
	}

	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Grandchildren holding the pipes open must not keep Wait blocked forever.
	cmd.WaitDelay = r.waitDelay

	r.log.Info("Starting ocr process",
		zap.String("program", argv[0]),
		zap.Strings("args", argv[1:]))

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && ctx.Err() == nil {
			r.log.Warn("Ocr process timed out",
				zap.Duration("timeout", r.timeout),
				zap.Duration("duration", duration))
			return nil, fmt.Errorf("%w after %s", ErrTimeout, r.timeout)
		}
		r.log.Warn("Ocr process cancelled",
			zap.Duration("duration", duration),
			zap.Error(ctx.Err()))
		return nil, fmt.Errorf("ocr process cancelled: %w", ctx.Err())
	}

	result := &domain.RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			r.log.Error("Failed to run ocr process",
				zap.String("program", argv[0]),
				zap.Error(err))
			return nil, fmt.Errorf("failed to run %s: %w", argv[0], err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	r.log.Info("Ocr process finished",
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", duration),
		zap.Int("stdout_bytes", len(result.Stdout)))

	return result, nil
}

func (r *ProcessRunner) acquire(ctx context.Context) error {
	if r.sem.TryAcquire(1) {
		return nil
	}

	waitCtx := ctx
	if r.queueTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.queueTimeout)
		defer cancel()
	}

	r.log.Debug("Waiting for ocr slot", zap.Duration("queue_timeout", r.queueTimeout))

	if err := r.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ocr request cancelled while queued: %w", ctx.Err())
		}
		r.log.Warn("Ocr request rejected, no free slot",
			zap.Duration("queue_timeout", r.queueTimeout))
		return ErrBusy
	}
	return nil
}
