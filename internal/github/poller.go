// Package github polls GitHub for activity on configured repositories and
// turns it into observations.
package github

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"vigil/internal/decision"
	"vigil/internal/logging"

	"github.com/google/go-github/v68/github"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Poller fetches notifications and recent repository events.
type Poller struct {
	client *github.Client
	repos  []string

	mu       sync.Mutex
	lastPoll time.Time
}

// NewPoller creates a Poller for the given repos ("owner/name" form).
func NewPoller(token string, repos []string) (*Poller, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	return &Poller{
		client:   github.NewClient(tc),
		repos:    repos,
		lastPoll: time.Now().Add(-24 * time.Hour),
	}, nil
}

// Poll fetches activity since the last poll and returns observations.
func (p *Poller) Poll(ctx context.Context) ([]decision.Observation, error) {
	timer := logging.StartTimer(logging.CategoryPoll, "github poll")
	defer timer.Stop()

	p.mu.Lock()
	since := p.lastPoll
	p.mu.Unlock()

	var observations []decision.Observation

	notifs, err := p.pollNotifications(ctx, since)
	if err != nil {
		return nil, err
	}
	observations = append(observations, notifs...)

	for _, repo := range p.repos {
		obs, err := p.pollRepoEvents(ctx, repo, since)
		if err != nil {
			logging.PollWarn("github events for %s failed: %v", repo, err)
			continue
		}
		observations = append(observations, obs...)
	}

	p.mu.Lock()
	p.lastPoll = time.Now()
	p.mu.Unlock()

	logging.Poll("github poll produced %d observations", len(observations))
	return observations, nil
}

func (p *Poller) pollNotifications(ctx context.Context, since time.Time) ([]decision.Observation, error) {
	notifications, _, err := p.client.Activity.ListNotifications(ctx, &github.NotificationListOptions{
		Since:       since,
		ListOptions: github.ListOptions{PerPage: 50},
	})
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}

	var observations []decision.Observation
	for _, n := range notifications {
		repo := n.GetRepository().GetFullName()
		observations = append(observations, decision.Observation{
			ID:       uuid.NewString(),
			Time:     n.GetUpdatedAt().Time,
			Source:   "github",
			Category: decision.CategoryOther,
			Summary: fmt.Sprintf("github notification [%s] %s: %s",
				n.GetReason(), repo, n.GetSubject().GetTitle()),
			Paths: []string{repo},
		})
	}
	return observations, nil
}

func (p *Poller) pollRepoEvents(ctx context.Context, repo string, since time.Time) ([]decision.Observation, error) {
	owner, name, ok := splitRepo(repo)
	if !ok {
		return nil, fmt.Errorf("invalid repo %q, want owner/name", repo)
	}

	events, _, err := p.client.Activity.ListRepositoryEvents(ctx, owner, name, &github.ListOptions{PerPage: 30})
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	var observations []decision.Observation
	for _, ev := range events {
		created := ev.GetCreatedAt().Time
		if !created.After(since) {
			continue
		}
		observations = append(observations, decision.Observation{
			ID:       uuid.NewString(),
			Time:     created,
			Source:   "github",
			Category: decision.CategoryOther,
			Summary: fmt.Sprintf("github %s on %s by %s",
				ev.GetType(), repo, ev.GetActor().GetLogin()),
			Paths: []string{repo},
		})
	}
	return observations, nil
}

func splitRepo(repo string) (owner, name string, ok bool) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
