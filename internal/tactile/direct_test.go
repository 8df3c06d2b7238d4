package tactile

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestExecuteEcho(t *testing.T) {
	e := NewDirectExecutor()
	result, err := e.Execute(context.Background(), Command{
		Binary:    "echo",
		Arguments: []string{"hello"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success || result.ExitCode != 0 {
		t.Errorf("result = %+v", result)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("stdout = %q", result.Stdout)
	}
	if result.Duration <= 0 {
		t.Error("duration not recorded")
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	e := NewDirectExecutor()
	result, err := e.Execute(context.Background(), Command{
		Binary:    "sh",
		Arguments: []string{"-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success {
		t.Error("non-zero exit is not an infrastructure failure")
	}
	if result.ExitCode != 3 {
		t.Errorf("exit code = %d", result.ExitCode)
	}
	if !result.IsNonZeroExit() {
		t.Error("IsNonZeroExit should be true")
	}
}

func TestExecuteTimeoutKills(t *testing.T) {
	e := NewDirectExecutor()
	result, err := e.Execute(context.Background(), Command{
		Binary:    "sleep",
		Arguments: []string{"5"},
		Limits:    &ResourceLimits{TimeoutMs: 100},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Killed {
		t.Fatal("expected command to be killed")
	}
	if !strings.Contains(result.KillReason, "timeout") {
		t.Errorf("kill reason = %q", result.KillReason)
	}
	if !result.Success {
		t.Error("a timeout kill is still Success=true")
	}
}

func TestExecuteMissingBinary(t *testing.T) {
	e := NewDirectExecutor()
	result, err := e.Execute(context.Background(), Command{
		Binary: "definitely-not-a-real-binary-xyz",
	})
	if err != nil {
		t.Fatalf("Execute should report via result, got %v", err)
	}
	if !result.IsError() {
		t.Errorf("expected infrastructure error, got %+v", result)
	}
}

func TestExecuteValidatesBinary(t *testing.T) {
	e := NewDirectExecutor()
	if _, err := e.Execute(context.Background(), Command{}); err == nil {
		t.Fatal("expected validation error for empty binary")
	}
}

func TestExecuteStdin(t *testing.T) {
	e := NewDirectExecutor()
	result, err := e.Execute(context.Background(), Command{
		Binary: "cat",
		Stdin:  "piped input",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Stdout != "piped input" {
		t.Errorf("stdout = %q", result.Stdout)
	}
}

func TestExecuteUsesDefaultWorkingDir(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultExecutorConfig()
	cfg.DefaultWorkingDir = dir

	e := NewDirectExecutorWithConfig(cfg)
	result, err := e.Execute(context.Background(), Command{Binary: "pwd"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(result.Stdout))
	if got != want {
		t.Errorf("pwd = %q, want %q", got, want)
	}
}

func TestAuditEvents(t *testing.T) {
	var events []AuditEvent
	e := NewDirectExecutor()
	e.SetAuditCallback(func(ev AuditEvent) {
		events = append(events, ev)
	})

	_, err := e.Execute(context.Background(), Command{
		Binary:     "echo",
		Arguments:  []string{"x"},
		DecisionID: "dec-1",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected start+complete events, got %d", len(events))
	}
	if events[0].Type != AuditEventStart || events[1].Type != AuditEventComplete {
		t.Errorf("event types = %s, %s", events[0].Type, events[1].Type)
	}
	if events[1].DecisionID != "dec-1" {
		t.Errorf("decision id not threaded: %+v", events[1])
	}
	if events[1].Result == nil {
		t.Error("complete event missing result")
	}
}

func TestLimitedWriterTruncates(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, max: 10}

	n, err := lw.Write([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if n != 16 {
		t.Errorf("reported length = %d, want original 16", n)
	}
	if buf.String() != "0123456789" {
		t.Errorf("buffer = %q", buf.String())
	}
	if !lw.truncated || lw.discarded != 6 {
		t.Errorf("truncated=%v discarded=%d", lw.truncated, lw.discarded)
	}

	// Further writes are swallowed entirely.
	n, _ = lw.Write([]byte("more"))
	if n != 4 || lw.discarded != 10 {
		t.Errorf("n=%d discarded=%d", n, lw.discarded)
	}
}

func TestConfigMergeCapsTimeout(t *testing.T) {
	cfg := DefaultExecutorConfig()
	cfg.MaxTimeout = time.Second

	merged := cfg.Merge(Command{
		Binary: "x",
		Limits: &ResourceLimits{TimeoutMs: 60_000},
	})
	if merged.Limits.TimeoutMs != 1000 {
		t.Errorf("timeout not capped: %d", merged.Limits.TimeoutMs)
	}

	merged = cfg.Merge(Command{Binary: "x"})
	if merged.Limits.TimeoutMs != 1000 {
		t.Errorf("default timeout should also be capped: %d", merged.Limits.TimeoutMs)
	}
	if merged.WorkingDirectory != "." {
		t.Errorf("working directory default missing: %q", merged.WorkingDirectory)
	}
}
