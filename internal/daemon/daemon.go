// Package daemon wires the watchers, decision engine, executor, and store
// into the long-running observe-decide-act loop.
package daemon

import (
	"context"
	"fmt"
	"time"

	"vigil/internal/amplitude"
	"vigil/internal/config"
	"vigil/internal/decision"
	"vigil/internal/gitwatch"
	vgithub "vigil/internal/github"
	"vigil/internal/logging"
	"vigil/internal/perception"
	"vigil/internal/store"
	"vigil/internal/tactile"
	"vigil/internal/watch"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Daemon is the long-running automation loop.
type Daemon struct {
	cfg     *config.Config
	watcher *watch.Watcher
	git     *gitwatch.Watcher
	engine  *decision.Engine
	agent   *tactile.AgentRunner
	store   *store.LocalStore
	cron    *cron.Cron

	actions map[string]decision.ActionTemplate
}

// New builds a Daemon from config. The store and LLM client are created
// here; Close releases them.
func New(cfg *config.Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	client, err := perception.NewClient(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	actions, err := decision.LoadActions(cfg.Actions.File)
	if err != nil {
		st.Close()
		return nil, err
	}
	actionsByName := make(map[string]decision.ActionTemplate, len(actions))
	for _, a := range actions {
		actionsByName[a.Name] = a
	}

	watcher, err := watch.New(cfg.Daemon.Root, cfg.Watch.IgnorePatterns, cfg.GetSettleWindow())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	engine := decision.NewEngine(
		decision.NewMatcher(actions, cfg.GetDefaultCooldown()),
		decision.NewEvaluator(client),
		decision.EngineConfig{
			WorkspaceSize:   cfg.Daemon.WorkspaceSize,
			ConfidenceFloor: cfg.Actions.ConfidenceFloor,
		},
	)

	executor := tactile.NewDirectExecutorWithConfig(tactile.ExecutorConfig{
		DefaultWorkingDir:  cfg.GetWorkingDirectory(),
		DefaultTimeout:     cfg.GetExecutionTimeout(),
		MaxTimeout:         2 * cfg.GetAgentTimeout(),
		MaxOutputBytes:     10 * 1024 * 1024,
		AllowedEnvironment: cfg.Execution.AllowedEnvVars,
	})
	agent, err := tactile.NewAgentRunner(tactile.AgentConfig{
		Agent:            cfg.Execution.Agent,
		Model:            cfg.Execution.AgentModel,
		Timeout:          cfg.GetAgentTimeout(),
		WorkingDirectory: cfg.GetWorkingDirectory(),
	}, executor)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &Daemon{
		cfg:     cfg,
		watcher: watcher,
		git:     gitwatch.New(cfg.Daemon.Root, cfg.GetGitPollInterval(), cfg.Git.LogDepth),
		engine:  engine,
		agent:   agent,
		store:   st,
		cron:    cron.New(),
		actions: actionsByName,
	}, nil
}

// Store exposes the audit store, for the CLI.
func (d *Daemon) Store() *store.LocalStore {
	return d.store
}

// Run starts all loops and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	logging.Daemon("starting: root=%s provider=%s agent=%s",
		d.cfg.Daemon.Root, d.cfg.LLM.Provider, d.cfg.Execution.Agent)

	if err := d.watcher.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	if err := d.git.Start(ctx); err != nil {
		return fmt.Errorf("starting git watcher: %w", err)
	}

	if err := d.scheduleCron(ctx); err != nil {
		return err
	}
	d.cron.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.consumeFileChanges(gctx)
	})
	g.Go(func() error {
		return d.consumeGitObservations(gctx)
	})

	d.store.AppendSelfObservation("lifecycle", "daemon started")

	err := g.Wait()

	stopCtx := d.cron.Stop()
	<-stopCtx.Done()
	d.watcher.Stop()
	d.git.Stop()
	d.store.AppendSelfObservation("lifecycle", "daemon stopped")
	logging.Daemon("stopped")

	if err == context.Canceled {
		return nil
	}
	return err
}

// Close releases the store. Call after Run returns.
func (d *Daemon) Close() error {
	return d.store.Close()
}

func (d *Daemon) scheduleCron(ctx context.Context) error {
	if d.cfg.Daemon.HeartbeatInterval != "" {
		_, err := d.cron.AddFunc(d.cfg.Daemon.HeartbeatInterval, func() {
			d.heartbeat()
		})
		if err != nil {
			return fmt.Errorf("scheduling heartbeat: %w", err)
		}
	}

	if d.cfg.Integrations.GitHub.Enabled {
		poller, err := vgithub.NewPoller(d.cfg.Integrations.GitHub.Token, d.cfg.Integrations.GitHub.Repos)
		if err != nil {
			return fmt.Errorf("github poller: %w", err)
		}
		_, err = d.cron.AddFunc(d.cfg.Integrations.GitHub.PollInterval, func() {
			d.runPoll(ctx, "github", poller.Poll)
		})
		if err != nil {
			return fmt.Errorf("scheduling github poll: %w", err)
		}
	}

	if d.cfg.Integrations.Amplitude.Enabled {
		client, err := amplitude.New(amplitude.Config{
			APIKey:    d.cfg.Integrations.Amplitude.APIKey,
			SecretKey: d.cfg.Integrations.Amplitude.SecretKey,
			BaseURL:   d.cfg.Integrations.Amplitude.BaseURL,
			EventType: d.cfg.Integrations.Amplitude.EventType,
		})
		if err != nil {
			return fmt.Errorf("amplitude client: %w", err)
		}
		_, err = d.cron.AddFunc(d.cfg.Integrations.Amplitude.PollInterval, func() {
			d.runPoll(ctx, "amplitude", client.Poll)
		})
		if err != nil {
			return fmt.Errorf("scheduling amplitude poll: %w", err)
		}
	}

	return nil
}

func (d *Daemon) heartbeat() {
	stats := d.watcher.GetStats()
	detail := fmt.Sprintf("created=%d modified=%d deleted=%d ignored=%d errors=%d",
		stats.FilesCreated, stats.FilesModified, stats.FilesDeleted, stats.Ignored, stats.Errors)
	if err := d.store.AppendSelfObservation("heartbeat", detail); err != nil {
		logging.DaemonWarn("heartbeat append failed: %v", err)
	}
	logging.DaemonDebug("heartbeat: %s", detail)
}

func (d *Daemon) runPoll(ctx context.Context, name string, poll func(context.Context) ([]decision.Observation, error)) {
	pollCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	observations, err := poll(pollCtx)
	if err != nil {
		logging.PollWarn("%s poll failed: %v", name, err)
		return
	}
	for _, obs := range observations {
		d.process(ctx, obs)
	}
}

func (d *Daemon) consumeFileChanges(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-d.watcher.Changes():
			if !ok {
				return nil
			}
			for _, obs := range groupByCategory(batch) {
				d.process(ctx, obs)
			}
		}
	}
}

func (d *Daemon) consumeGitObservations(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case gitObs, ok := <-d.git.Observations():
			if !ok {
				return nil
			}
			d.process(ctx, convertGitObservation(gitObs))
		}
	}
}

// groupByCategory folds one settled batch into one observation per
// category, so a burst of source edits is evaluated as a unit.
func groupByCategory(batch []watch.Change) []decision.Observation {
	byCategory := make(map[decision.Category][]watch.Change)
	for _, c := range batch {
		cat := decision.Categorize(c.Path)
		byCategory[cat] = append(byCategory[cat], c)
	}

	var observations []decision.Observation
	for cat, changes := range byCategory {
		paths := make([]string, len(changes))
		for i, c := range changes {
			paths[i] = c.Path
		}
		observations = append(observations, decision.Observation{
			ID:       uuid.NewString(),
			Time:     time.Now(),
			Source:   "file",
			Category: cat,
			Paths:    paths,
			Summary:  fmt.Sprintf("%d %s file(s) changed", len(changes), cat),
		})
	}
	return observations
}

func convertGitObservation(obs gitwatch.Observation) decision.Observation {
	var paths []string
	summary := ""
	if n := len(obs.NewCommits); n > 0 {
		summary = fmt.Sprintf("%d new commit(s)", n)
		for _, c := range obs.NewCommits {
			summary += "; " + c.Message
			paths = append(paths, c.Files...)
		}
	}
	if n := len(obs.Dirty); n > 0 {
		if summary != "" {
			summary += " / "
		}
		summary += fmt.Sprintf("%d file(s) newly dirty", n)
		for _, e := range obs.Dirty {
			paths = append(paths, e.Path)
		}
	}
	if n := len(obs.Cleaned); n > 0 {
		if summary != "" {
			summary += " / "
		}
		summary += fmt.Sprintf("%d file(s) cleaned", n)
	}

	return decision.Observation{
		ID:       uuid.NewString(),
		Time:     obs.Time,
		Source:   "git",
		Category: decision.CategoryGit,
		Paths:    paths,
		Summary:  summary,
	}
}

// process runs one observation through the engine and acts on the results.
func (d *Daemon) process(ctx context.Context, obs decision.Observation) {
	if err := d.store.AppendObservation(obs); err != nil {
		logging.DaemonWarn("appending observation failed: %v", err)
	}

	for _, dec := range d.engine.Process(ctx, obs) {
		if err := d.store.AppendDecision(dec); err != nil {
			logging.DaemonWarn("appending decision failed: %v", err)
		}
		d.maybeExecute(ctx, dec)
	}
}

func (d *Daemon) maybeExecute(ctx context.Context, dec decision.Decision) {
	action, ok := d.actions[dec.Action]
	if !ok {
		return
	}
	if !action.AutoExecute || !dec.Approved(action.Threshold) {
		return
	}

	logging.Daemon("auto-executing %s (decision %s, confidence %.2f)", dec.Action, dec.ID, dec.Confidence)

	text, result, err := d.agent.Run(ctx, dec.Prompt, dec.ID)
	if result != nil {
		if serr := d.store.AppendExecution(dec.ID, result); serr != nil {
			logging.DaemonWarn("appending execution failed: %v", serr)
		}
	}
	if err != nil {
		logging.DaemonWarn("agent execution for %s failed: %v", dec.Action, err)
		return
	}
	logging.Daemon("agent completed %s: %d bytes of output", dec.Action, len(text))
}
