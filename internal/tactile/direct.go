package tactile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"vigil/internal/logging"
)

// DirectExecutor executes commands directly on the host using os/exec.
type DirectExecutor struct {
	mu            sync.RWMutex
	config        ExecutorConfig
	auditCallback func(AuditEvent)
}

// NewDirectExecutor creates a direct executor with default config.
func NewDirectExecutor() *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultExecutorConfig())
}

// NewDirectExecutorWithConfig creates a direct executor with custom config.
func NewDirectExecutorWithConfig(config ExecutorConfig) *DirectExecutor {
	logging.TactileDebug("creating DirectExecutor: timeout=%s maxOutput=%d bytes",
		config.DefaultTimeout, config.MaxOutputBytes)
	return &DirectExecutor{
		config:        config,
		auditCallback: config.AuditCallback,
	}
}

// SetAuditCallback sets the callback for audit events.
func (e *DirectExecutor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

func (e *DirectExecutor) emitAudit(event AuditEvent) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		callback(event)
	}
}

// Validate checks if a command can be executed.
func (e *DirectExecutor) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	return nil
}

// Execute runs a command on the host. A timeout kill is not an
// infrastructure failure: the result records Killed with the reason and
// Success stays true.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	timer := logging.StartTimer(logging.CategoryTactile, "command execution")
	defer timer.Stop()

	logging.Tactile("executing: %s", cmd.CommandString())

	if err := e.Validate(cmd); err != nil {
		logging.TactileWarn("command validation failed: %v", err)
		return nil, err
	}

	cmd = e.config.Merge(cmd)

	result := &ExecutionResult{
		ExitCode: -1,
		Command:  &cmd,
	}

	e.emitAudit(AuditEvent{
		Type:       AuditEventStart,
		Timestamp:  time.Now(),
		Command:    cmd,
		DecisionID: cmd.DecisionID,
	})

	timeout := time.Duration(cmd.Limits.TimeoutMs) * time.Millisecond
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = e.buildEnvironment(cmd.Environment)

	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	maxOutput := cmd.Limits.MaxOutputBytes
	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: maxOutput}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: maxOutput}
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited

	result.StartedAt = time.Now()
	err := execCmd.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()

	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
		logging.TactileWarn("output truncated: %d bytes discarded", result.TruncatedBytes)
	}

	switch {
	case err != nil && execCtx.Err() == context.DeadlineExceeded:
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", timeout)
		result.Success = true
		logging.TactileWarn("command killed (timeout): %s after %s", cmd.Binary, timeout)
		e.emitAudit(AuditEvent{
			Type:       AuditEventKilled,
			Timestamp:  time.Now(),
			Command:    cmd,
			Result:     result,
			DecisionID: cmd.DecisionID,
		})
		return result, nil

	case err != nil && execCtx.Err() == context.Canceled:
		result.Killed = true
		result.KillReason = "context canceled"
		result.Success = true
		e.emitAudit(AuditEvent{
			Type:       AuditEventKilled,
			Timestamp:  time.Now(),
			Command:    cmd,
			Result:     result,
			DecisionID: cmd.DecisionID,
		})
		return result, nil

	case err != nil:
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.Success = true
			result.ExitCode = exitErr.ExitCode()
			logging.TactileDebug("command exited non-zero: %s -> %d", cmd.Binary, result.ExitCode)
		} else {
			result.Success = false
			result.Error = err.Error()
			logging.TactileError("command failed: %s - %v", cmd.Binary, err)
			e.emitAudit(AuditEvent{
				Type:       AuditEventError,
				Timestamp:  time.Now(),
				Command:    cmd,
				Result:     result,
				DecisionID: cmd.DecisionID,
			})
			return result, nil
		}

	default:
		result.Success = true
		result.ExitCode = 0
	}

	e.emitAudit(AuditEvent{
		Type:       AuditEventComplete,
		Timestamp:  time.Now(),
		Command:    cmd,
		Result:     result,
		DecisionID: cmd.DecisionID,
	})

	logging.Tactile("command completed: %s -> exit=%d duration=%s stdout=%d bytes",
		cmd.Binary, result.ExitCode, result.Duration, len(result.Stdout))

	return result, nil
}

// buildEnvironment passes through allowed variables plus command-specific ones.
func (e *DirectExecutor) buildEnvironment(cmdEnv []string) []string {
	env := make([]string, 0, len(e.config.AllowedEnvironment)+len(cmdEnv))
	for _, key := range e.config.AllowedEnvironment {
		if val := os.Getenv(key); val != "" {
			env = append(env, fmt.Sprintf("%s=%s", key, val))
		}
	}
	return append(env, cmdEnv...)
}

// limitedWriter is an io.Writer that caps total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil // Pretend we wrote it so the process is not killed
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err // Original length avoids short-write errors
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
