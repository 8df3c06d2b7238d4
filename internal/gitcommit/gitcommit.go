// Package gitcommit generates commit messages for staged changes.
package gitcommit

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"vigil/internal/logging"
	"vigil/internal/perception"
)

const maxDiffBytes = 48 * 1024

const systemPrompt = `You write git commit messages in conventional commit style (type(scope): subject). The subject line is at most 72 characters, imperative mood, no trailing period. Add a short body only when the diff needs explanation. Respond with the commit message only, no fences, no commentary.`

// StagedDiff returns the staged diff and the list of staged files.
func StagedDiff(ctx context.Context, root string) (string, []string, error) {
	nameCmd := exec.CommandContext(ctx, "git", "diff", "--cached", "--name-only")
	nameCmd.Dir = root
	nameOut, err := nameCmd.Output()
	if err != nil {
		return "", nil, fmt.Errorf("git diff --name-only failed: %w", err)
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(nameOut)), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	if len(files) == 0 {
		return "", nil, nil
	}

	diffCmd := exec.CommandContext(ctx, "git", "diff", "--cached")
	diffCmd.Dir = root
	diffOut, err := diffCmd.Output()
	if err != nil {
		return "", nil, fmt.Errorf("git diff failed: %w", err)
	}

	diff := string(diffOut)
	if len(diff) > maxDiffBytes {
		diff = diff[:maxDiffBytes] + "\n... (diff truncated)"
	}
	return diff, files, nil
}

// GenerateMessage asks the LLM for a commit message describing the staged
// changes. Returns an error if nothing is staged.
func GenerateMessage(ctx context.Context, client perception.LLMClient, root string) (string, error) {
	diff, files, err := StagedDiff(ctx, root)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("nothing staged")
	}

	logging.Git("generating commit message for %d staged files", len(files))

	prompt := fmt.Sprintf("Staged files:\n%s\n\nDiff:\n%s", strings.Join(files, "\n"), diff)
	response, err := client.CompleteWithSystem(ctx, systemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("generating message: %w", err)
	}

	msg := CleanMessage(response)
	if msg == "" {
		return "", fmt.Errorf("empty message from model")
	}
	return msg, nil
}

// Commit runs git commit with the given message.
func Commit(ctx context.Context, root, message string) error {
	cmd := exec.CommandContext(ctx, "git", "commit", "-m", message)
	cmd.Dir = root
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git commit failed: %w (%s)", err, strings.TrimSpace(string(output)))
	}
	logging.Git("committed: %s", firstLine(message))
	return nil
}

// CleanMessage strips code fences and surrounding noise from model output.
func CleanMessage(response string) string {
	msg := strings.TrimSpace(response)

	if strings.HasPrefix(msg, "```") {
		lines := strings.Split(msg, "\n")
		var kept []string
		for _, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				continue
			}
			kept = append(kept, line)
		}
		msg = strings.TrimSpace(strings.Join(kept, "\n"))
	}

	msg = strings.Trim(msg, "\"")
	return strings.TrimSpace(msg)
}

func firstLine(s string) string {
	if idx := strings.Index(s, "\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}
