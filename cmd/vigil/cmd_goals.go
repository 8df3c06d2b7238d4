package main

import (
	"fmt"
	"strconv"
	"strings"

	"vigil/internal/store"

	"github.com/spf13/cobra"
)

var taskGoalID int64

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Track goals in the audit store",
}

var goalAddCmd = &cobra.Command{
	Use:   "add <description>",
	Short: "Open a new goal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.LocalStore) error {
			id, err := s.AddGoal(strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Printf("goal %d opened\n", id)
			return nil
		})
	},
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open goals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.LocalStore) error {
			goals, err := s.OpenGoals()
			if err != nil {
				return err
			}
			if len(goals) == 0 {
				fmt.Println("no open goals")
				return nil
			}
			for _, g := range goals {
				fmt.Printf("#%-4d %s  %s\n", g.ID, g.Time.Format("01-02"), g.Description)
			}
			return nil
		})
	},
}

var goalDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Close a goal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid goal id %q", args[0])
		}
		return withStore(func(s *store.LocalStore) error {
			if err := s.CloseGoal(id); err != nil {
				return err
			}
			fmt.Printf("goal %d closed\n", id)
			return nil
		})
	},
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Track tasks in the audit store",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <description>",
	Short: "Open a new task, optionally under a goal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.LocalStore) error {
			id, err := s.AddTask(taskGoalID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Printf("task %d opened\n", id)
			return nil
		})
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(s *store.LocalStore) error {
			tasks, err := s.OpenTasks()
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Println("no open tasks")
				return nil
			}
			for _, tk := range tasks {
				goal := ""
				if tk.GoalID > 0 {
					goal = fmt.Sprintf(" (goal %d)", tk.GoalID)
				}
				fmt.Printf("#%-4d %s  %s%s\n", tk.ID, tk.Time.Format("01-02"), tk.Description, goal)
			}
			return nil
		})
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Close a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid task id %q", args[0])
		}
		return withStore(func(s *store.LocalStore) error {
			if err := s.CloseTask(id); err != nil {
				return err
			}
			fmt.Printf("task %d closed\n", id)
			return nil
		})
	},
}

func init() {
	taskAddCmd.Flags().Int64Var(&taskGoalID, "goal", 0, "goal id this task belongs to")

	goalCmd.AddCommand(goalAddCmd, goalListCmd, goalDoneCmd)
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd)
}

// withStore opens the configured store for one command and closes it after.
func withStore(fn func(*store.LocalStore) error) error {
	s, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
