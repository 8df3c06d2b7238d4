package main

import (
	"fmt"

	"vigil/internal/amplitude"
	"vigil/internal/decision"
	vgithub "vigil/internal/github"
	"vigil/internal/store"

	"github.com/spf13/cobra"
)

var pollCmd = &cobra.Command{
	Use:       "poll <github|amplitude>",
	Short:     "Run one integration poll and record what it finds",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"github", "amplitude"},
	RunE:      runPoll,
}

func runPoll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var observations []decision.Observation
	switch args[0] {
	case "github":
		gh := cfg.Integrations.GitHub
		poller, err := vgithub.NewPoller(gh.Token, gh.Repos)
		if err != nil {
			return err
		}
		observations, err = poller.Poll(ctx)
		if err != nil {
			return err
		}
	case "amplitude":
		amp := cfg.Integrations.Amplitude
		client, err := amplitude.New(amplitude.Config{
			APIKey:    amp.APIKey,
			SecretKey: amp.SecretKey,
			BaseURL:   amp.BaseURL,
			EventType: amp.EventType,
		})
		if err != nil {
			return err
		}
		observations, err = client.Poll(ctx)
		if err != nil {
			return err
		}
	}

	if len(observations) == 0 {
		fmt.Println("no new activity.")
		return nil
	}

	s, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, obs := range observations {
		fmt.Printf("%s  [%s] %s\n", obs.Time.Format("15:04:05"), obs.Source, obs.Summary)
		if err := s.AppendObservation(obs); err != nil {
			return fmt.Errorf("recording observation: %w", err)
		}
	}
	fmt.Printf("\nrecorded %d observation(s).\n", len(observations))
	return nil
}
