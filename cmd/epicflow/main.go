// Package main provides the epicflow CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/epicflow/epicflow"
	"github.com/epicflow/epicflow/model/epic"
)

var version = "0.1.0"

var (
	configPath  string
	checkpoints string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "epicflow",
		Short: "Epic orchestration engine",
		Long: `epicflow decomposes a development request into an ordered, costed plan
and drives each step through an execution backend, suspending for human
approval when a risk trigger fires.

Use 'epicflow run -f request.yaml' to start an epic.
Use 'epicflow approve' to resume one waiting for a decision.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "engine configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&checkpoints, "checkpoints", "", "checkpoint directory (overrides config)")

	rootCmd.AddCommand(newRunCmd(), newStatusCmd(), newApproveCmd(), newStopCmd(), newListCmd(), newVersionCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*epicflow.Config, error) {
	config := epicflow.DefaultConfig()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if checkpoints != "" {
		config.CheckpointLocation = checkpoints
	}
	return config, nil
}

// newService assembles an engine from the CLI configuration and recovers any
// checkpointed epics so status/approve/stop can address them.
func newService(ctx context.Context) (*epicflow.Service, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}
	srv, err := epicflow.NewFromConfig(config)
	if err != nil {
		return nil, err
	}
	if _, err := srv.Recover(ctx); err != nil {
		return nil, fmt.Errorf("failed to recover checkpoints: %w", err)
	}
	return srv, nil
}

func newRunCmd() *cobra.Command {
	var requestFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create an epic from a request file and drive it",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(requestFile)
			if err != nil {
				return fmt.Errorf("failed to read request: %w", err)
			}
			request := &epic.Request{}
			if err := yaml.Unmarshal(data, request); err != nil {
				return fmt.Errorf("failed to parse request: %w", err)
			}

			ctx := cmd.Context()
			srv, err := newService(ctx)
			if err != nil {
				return err
			}
			info, err := srv.CreateEpic(ctx, request)
			if err != nil {
				return err
			}
			fmt.Printf("epic %s created: %s\n", info.EpicID, info.Title)
			fmt.Printf("planned steps: %v (estimated cost %.2f)\n", info.PlannedSteps, info.EstimatedCost)

			state, err := awaitSettled(ctx, srv, info.EpicID)
			if err != nil {
				return err
			}
			printState(state)
			return nil
		},
	}
	cmd.Flags().StringVarP(&requestFile, "file", "f", "request.yaml", "request file (YAML)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <epic-id>",
		Short: "Show the state of an epic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			state, err := srv.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printState(state)
			return nil
		},
	}
}

func newApproveCmd() *cobra.Command {
	var decision, approver, comments string
	cmd := &cobra.Command{
		Use:   "approve <epic-id> <approval-id>",
		Short: "Record a decision on a pending approval and resume the epic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			srv, err := newService(ctx)
			if err != nil {
				return err
			}
			point, err := srv.Approve(ctx, args[0], args[1], decision, approver, comments)
			if err != nil {
				return err
			}
			fmt.Printf("approval %s: %s by %s\n", point.ID, point.Decision, point.Approver)

			state, err := awaitSettled(ctx, srv, args[0])
			if err != nil {
				return err
			}
			printState(state)
			return nil
		},
	}
	cmd.Flags().StringVar(&decision, "decision", epic.DecisionApproved, "approved, denied or rollback")
	cmd.Flags().StringVar(&approver, "approver", "cli", "who decides")
	cmd.Flags().StringVar(&comments, "comments", "", "decision comments")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <epic-id>",
		Short: "Cancel an epic (best-effort, a dispatched step may finish)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			stopped, err := srv.Stop(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if stopped {
				fmt.Println("epic cancelled, backend step stopped")
			} else {
				fmt.Println("epic cancelled, a step already dispatched may still finish")
			}
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active epics",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			active := srv.ListActive()
			if len(active) == 0 {
				fmt.Println("no active epics")
				return nil
			}
			for _, state := range active {
				fmt.Printf("%s  %-10s  cost %.2f  %s\n", state.ID, state.Phase, state.CostAccumulated, state.Title)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("epicflow", version)
		},
	}
}

// awaitSettled polls until the epic reaches a terminal phase or suspends for
// approval.
func awaitSettled(ctx context.Context, srv *epicflow.Service, epicID string) (*epic.State, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		state, err := srv.GetStatus(ctx, epicID)
		if err != nil {
			return nil, err
		}
		if state.Phase.Terminal() || (state.Phase == epic.PhaseReviewing && len(state.PendingApprovals) > 0) {
			return state, nil
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printState(state *epic.State) {
	fmt.Printf("epic %s  phase %s\n", state.ID, state.Phase)
	fmt.Printf("  title: %s\n", state.Title)
	fmt.Printf("  steps: %v\n", state.PlannedSteps)
	fmt.Printf("  completed: %v\n", state.CompletedSteps)
	fmt.Printf("  cost: %.2f", state.CostAccumulated)
	if state.CostLimit > 0 {
		fmt.Printf(" of %.2f limit", state.CostLimit)
	}
	fmt.Println()
	for _, id := range state.PendingApprovals {
		fmt.Printf("  pending approval: %s\n", id)
	}
	for _, reason := range state.FailureReasons {
		fmt.Printf("  failure: %s\n", reason)
	}
	if state.Totals != nil {
		fmt.Printf("  totals: %d commits, %d files, success rate %.0f%%\n",
			len(state.Totals.UniqueCommits), len(state.Totals.UniqueFiles), state.Totals.SuccessRate*100)
	}
}
