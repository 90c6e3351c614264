package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "jobqueue-admin",
		Short:         "Inspect and operate a jobqueue store",
		Long:          "jobqueue-admin reads the same environment configuration as the jobqueue service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.SetOut(a.out)

	root.AddCommand(
		newEnqueueCommand(a),
		newEnqueueFileCommand(a),
		newStatusCommand(a),
		newCancelCommand(a),
		newStatsCommand(a),
		newCleanupCommand(a),
		newReclaimCommand(a),
		newMigrateCommand(a),
	)
	return root
}

func newEnqueueCommand(a *app) *cobra.Command {
	var (
		priority    string
		payload     string
		delay       time.Duration
		maxAttempts int
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "enqueue <job-type>",
		Short: "Enqueue one job and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &model.EnqueueRequest{
				Type:           model.JobType(args[0]),
				Payload:        json.RawMessage(payload),
				MaxAttempts:    maxAttempts,
				TimeoutSeconds: int(timeout / time.Second),
			}
			if err := req.Priority.UnmarshalText([]byte(priority)); err != nil {
				return err
			}
			if delay > 0 {
				req.ScheduledFor = model.TimePtr(time.Now().Add(delay))
			}
			return a.withQueue(cmd.Context(), func(q adminQueue) error {
				id, err := q.Enqueue(cmd.Context(), req)
				if err != nil {
					return err
				}
				cmd.Println(id)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&payload, "payload", "p", "{}", "JSON payload")
	cmd.Flags().StringVar(&priority, "priority", "normal", "critical, high, normal or low")
	cmd.Flags().DurationVar(&delay, "delay", 0, "run no earlier than now + delay")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "attempts before failing (0 uses the handler default)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "execution timeout, whole seconds (0 uses the handler default)")
	return cmd
}

func newEnqueueFileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue-file <path.yaml>",
		Short: "Enqueue every job listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			reqs, err := parseEnqueueFile(f, time.Now())
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			return a.withQueue(cmd.Context(), func(q adminQueue) error {
				for i, req := range reqs {
					id, err := q.Enqueue(cmd.Context(), req)
					if err != nil {
						return fmt.Errorf("job %d (%s): %w", i, req.Type, err)
					}
					cmd.Printf("%s\t%s\n", id, req.Type)
				}
				return nil
			})
		},
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Print the status of a job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQueue(cmd.Context(), func(q adminQueue) error {
				st, err := q.GetStatus(cmd.Context(), args[0])
				if errors.Is(err, model.ErrJobNotFound) {
					return fmt.Errorf("job %s not found", args[0])
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, st)
			})
		},
	}
}

func newCancelCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job that has not finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQueue(cmd.Context(), func(q adminQueue) error {
				ok, err := q.CancelJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ok {
					cmd.Printf("cancelled %s\n", args[0])
				} else {
					cmd.Printf("%s already finished\n", args[0])
				}
				return nil
			})
		},
	}
}

func newStatsCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withQueue(cmd.Context(), func(q adminQueue) error {
				stats, err := q.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, stats)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				rows := []struct {
					label string
					value any
				}{
					{"total", stats.TotalJobs},
					{"queued", stats.QueuedJobs},
					{"processing", stats.ProcessingJobs},
					{"retrying", stats.RetryingJobs},
					{"completed", stats.CompletedJobs},
					{"failed", stats.FailedJobs},
					{"cancelled", stats.CancelledJobs},
					{"success rate", fmt.Sprintf("%.2f", stats.SuccessRate)},
					{"error rate", fmt.Sprintf("%.2f", stats.ErrorRate)},
				}
				for _, r := range rows {
					if _, err := fmt.Fprintf(tw, "%s\t%v\n", r.label, r.value); err != nil {
						return err
					}
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newCleanupCommand(a *app) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete completed, failed and cancelled jobs older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			return a.withQueue(cmd.Context(), func(q adminQueue) error {
				n, err := q.CleanupOldJobs(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				cmd.Printf("deleted %d jobs\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "minimum age of deleted jobs")
	return cmd
}

func newReclaimCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Return stale processing jobs to the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withQueue(cmd.Context(), func(q adminQueue) error {
				n, err := q.ReclaimStale(cmd.Context())
				if err != nil {
					return err
				}
				cmd.Printf("reclaimed %d jobs\n", n)
				return nil
			})
		},
	}
}

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.migrate(cmd.Context(), &a.cfg); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
