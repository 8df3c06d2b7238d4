package gitcommit

import (
	"context"
	"strings"
	"testing"
)

type fakeClient struct {
	response string
	prompt   string
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	f.prompt = prompt
	return f.response, nil
}

func TestCleanMessage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"fix(watch): handle rename events", "fix(watch): handle rename events"},
		{"  feat: add poller  \n", "feat: add poller"},
		{"```\nfix: thing\n```", "fix: thing"},
		{"```text\nfix: thing\n\nbody line\n```", "fix: thing\n\nbody line"},
		{"\"chore: quoted\"", "chore: quoted"},
	}
	for _, tt := range tests {
		if got := CleanMessage(tt.in); got != tt.want {
			t.Errorf("CleanMessage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStagedDiffEmptyOnNonRepo(t *testing.T) {
	if _, _, err := StagedDiff(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected error outside a git repository")
	}
}

func TestGenerateMessageRequiresStagedChanges(t *testing.T) {
	// t.TempDir is not a repo, so StagedDiff errors before the LLM is hit.
	client := &fakeClient{response: "feat: x"}
	if _, err := GenerateMessage(context.Background(), client, t.TempDir()); err == nil {
		t.Fatal("expected error")
	}
	if client.prompt != "" {
		t.Error("LLM should not be called without staged changes")
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("subject\nbody"); got != "subject" {
		t.Errorf("got %q", got)
	}
	if got := firstLine("only"); got != "only" {
		t.Errorf("got %q", got)
	}
	if !strings.HasPrefix(firstLine("a\n"), "a") {
		t.Error("trailing newline case")
	}
}
