// Package gitwatch polls a git repository for new commits and working-tree
// changes, turning them into observations for the decision loop.
package gitwatch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"vigil/internal/logging"
)

// Commit is a parsed entry from git log.
type Commit struct {
	Hash      string    `json:"hash"`
	Author    string    `json:"author"`
	Time      time.Time `json:"time"`
	Message   string    `json:"message"`
	Files     []string  `json:"files"`
	Additions int       `json:"additions"`
	Deletions int       `json:"deletions"`
}

// StatusEntry is one line of git status --porcelain.
type StatusEntry struct {
	Code string `json:"code"` // two-character XY status
	Path string `json:"path"`
}

// Observation is the delta produced by one poll.
type Observation struct {
	Time       time.Time     `json:"time"`
	NewCommits []Commit      `json:"new_commits,omitempty"`
	Dirty      []StatusEntry `json:"dirty,omitempty"`
	Cleaned    []string      `json:"cleaned,omitempty"`
	Branch     string        `json:"branch,omitempty"`
}

// Empty reports whether the poll found nothing new.
func (o Observation) Empty() bool {
	return len(o.NewCommits) == 0 && len(o.Dirty) == 0 && len(o.Cleaned) == 0
}

// Watcher polls git state on an interval and emits observations.
type Watcher struct {
	mu       sync.RWMutex
	root     string
	interval time.Duration
	logDepth int

	lastHead  string
	dirtySeen map[string]string // path -> status code

	observations chan Observation
	stopCh       chan struct{}
	doneCh       chan struct{}
	running      bool
}

// New creates a Watcher polling root every interval, reading logDepth
// commits per poll.
func New(root string, interval time.Duration, logDepth int) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logDepth <= 0 {
		logDepth = 20
	}
	return &Watcher{
		root:         root,
		interval:     interval,
		logDepth:     logDepth,
		dirtySeen:    make(map[string]string),
		observations: make(chan Observation, 8),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Observations returns the channel of poll deltas.
func (w *Watcher) Observations() <-chan Observation {
	return w.observations
}

// Start begins polling. If root is not a git repository the watcher
// starts anyway and reports nothing, so a plain directory still works.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := checkGitRepo(ctx, w.root); err != nil {
		logging.Git("not a git repository, git polling disabled: %s", w.root)
		close(w.doneCh)
		return nil
	}

	// Prime the baseline so startup does not replay existing history.
	if head, err := currentHead(ctx, w.root); err == nil {
		w.lastHead = head
	}
	if entries, err := gitStatus(ctx, w.root); err == nil {
		for _, e := range entries {
			w.dirtySeen[e.Path] = e.Code
		}
	}
	logging.Git("polling %s every %v (baseline %s, %d dirty)", w.root, w.interval, short(w.lastHead), len(w.dirtySeen))

	go w.run(ctx)
	return nil
}

// Stop halts polling. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	logging.Git("stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			obs, err := w.poll(ctx)
			if err != nil {
				logging.GitWarn("poll failed: %v", err)
				continue
			}
			if obs.Empty() {
				continue
			}
			select {
			case w.observations <- obs:
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// poll compares current git state to the last-seen baseline.
func (w *Watcher) poll(ctx context.Context) (Observation, error) {
	timer := logging.StartTimer(logging.CategoryGit, "poll")
	defer timer.StopWithThreshold(2 * time.Second)

	obs := Observation{Time: time.Now()}

	head, err := currentHead(ctx, w.root)
	if err != nil {
		return obs, fmt.Errorf("resolving HEAD: %w", err)
	}
	obs.Branch, _ = currentBranch(ctx, w.root)

	if head != w.lastHead {
		commits, err := LogSince(ctx, w.root, w.lastHead, w.logDepth)
		if err != nil {
			return obs, err
		}
		obs.NewCommits = commits
		w.lastHead = head
		logging.Git("%d new commits, HEAD now %s", len(commits), short(head))
	}

	entries, err := gitStatus(ctx, w.root)
	if err != nil {
		return obs, err
	}

	current := make(map[string]string, len(entries))
	for _, e := range entries {
		current[e.Path] = e.Code
		if prev, ok := w.dirtySeen[e.Path]; !ok || prev != e.Code {
			obs.Dirty = append(obs.Dirty, e)
		}
	}
	for path := range w.dirtySeen {
		if _, ok := current[path]; !ok {
			obs.Cleaned = append(obs.Cleaned, path)
		}
	}
	w.dirtySeen = current

	return obs, nil
}

// LogSince reads up to depth commits newer than since (exclusive).
// An empty since reads the most recent depth commits.
func LogSince(ctx context.Context, root, since string, depth int) ([]Commit, error) {
	args := []string{"log",
		fmt.Sprintf("-n%d", depth),
		"--pretty=format:COMMIT:%H|%an|%ct|%s",
		"--numstat",
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = root
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git log failed: %w", err)
	}

	commits := ParseLog(output)
	if since == "" {
		return commits, nil
	}
	for i, c := range commits {
		if c.Hash == since {
			return commits[:i], nil
		}
	}
	return commits, nil
}

// ParseLog parses git log --pretty=format:COMMIT:%H|%an|%ct|%s --numstat
// output into commits, newest first.
func ParseLog(output []byte) []Commit {
	var commits []Commit
	var current *Commit

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "COMMIT:") {
			if current != nil {
				commits = append(commits, *current)
			}
			current = &Commit{}
			parts := strings.SplitN(strings.TrimPrefix(line, "COMMIT:"), "|", 4)
			if len(parts) >= 4 {
				current.Hash = parts[0]
				current.Author = parts[1]
				if ts, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
					current.Time = time.Unix(ts, 0)
				}
				current.Message = parts[3]
			}
			continue
		}

		// numstat lines: "added\tdeleted\tfile"
		fields := strings.Fields(line)
		if len(fields) >= 3 && current != nil {
			current.Files = append(current.Files, fields[2])
			if n, err := strconv.Atoi(fields[0]); err == nil {
				current.Additions += n
			}
			if n, err := strconv.Atoi(fields[1]); err == nil {
				current.Deletions += n
			}
		}
	}
	if current != nil {
		commits = append(commits, *current)
	}
	return commits
}

// ParseStatus parses git status --porcelain output.
func ParseStatus(output []byte) []StatusEntry {
	var entries []StatusEntry
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		path := strings.TrimSpace(line[3:])
		// Renames are reported as "old -> new"; the new path is what matters.
		if idx := strings.Index(path, " -> "); idx >= 0 {
			path = path[idx+4:]
		}
		entries = append(entries, StatusEntry{Code: code, Path: path})
	}
	return entries
}

func gitStatus(ctx context.Context, root string) ([]StatusEntry, error) {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = root
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git status failed: %w", err)
	}
	return ParseStatus(output), nil
}

func currentHead(ctx context.Context, root string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = root
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

func currentBranch(ctx context.Context, root string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = root
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

func checkGitRepo(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	return cmd.Run()
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	if hash == "" {
		return "(none)"
	}
	return hash
}
