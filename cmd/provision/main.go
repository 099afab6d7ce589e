// Command provision creates employee accounts from a roster: an auth
// identity, the employee record with its derived code, and the role grant.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/modeer/staffprov/cmd/provision/cli"
	"github.com/modeer/staffprov/internal/app"
)

type rootOptions struct {
	jsonOutput bool
	rosterPath string
	reportPath string
}

// session is created once flags are parsed and torn down after the command.
type session struct {
	cfg     *app.Config
	logger  *slog.Logger
	backend *backend
	cli     *cli.ProvisionCLI
	cleanup func()
}

func (s *session) close() {
	if s == nil {
		return
	}
	if s.cleanup != nil {
		s.cleanup()
	}
	if s.backend != nil {
		s.backend.Close()
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		opts     rootOptions
		sess     *session
		exitCode int
	)
	defer func() { sess.close() }()

	root := &cobra.Command{
		Use:           "provision",
		Short:         "Provision employee accounts in Supabase from a roster",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := app.NewLogger(cfg)
			if opts.rosterPath == "" {
				opts.rosterPath = cfg.RosterPath
			}
			if !cmd.Flags().Changed("report") && cfg.ReportPath != "" {
				opts.reportPath = cfg.ReportPath
			}
			b, err := connect(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			c, cleanup, err := buildCLI(cfg, b, logger)
			if err != nil {
				b.Close()
				return err
			}
			sess = &session{cfg: cfg, logger: logger, backend: b, cli: c, cleanup: cleanup}
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print the run summary as JSON")
	root.PersistentFlags().StringVar(&opts.rosterPath, "roster", "", "Roster file, YAML or JSON (default $PROVISION_ROSTER_PATH)")
	root.PersistentFlags().StringVar(&opts.reportPath, "report", "", "Where to write the run artifact (default $PROVISION_REPORT_PATH)")

	output := func(cmd *cobra.Command) cli.Output {
		return cli.Output{JSONOutput: opts.jsonOutput, Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
	}

	var identitiesOnly bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Provision every roster profile end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode = sess.cli.RunCommand(cmd.Context(), cli.RunOptions{
				Output:         output(cmd),
				RosterPath:     opts.rosterPath,
				ReportPath:     opts.reportPath,
				IdentitiesOnly: identitiesOnly,
			})
			return nil
		},
	}
	runCmd.Flags().BoolVar(&identitiesOnly, "identities-only", false, "Stop after creating identities")

	identitiesCmd := &cobra.Command{
		Use:   "identities",
		Short: "First pass: create identities only",
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode = sess.cli.RunCommand(cmd.Context(), cli.RunOptions{
				Output:         output(cmd),
				RosterPath:     opts.rosterPath,
				ReportPath:     opts.reportPath,
				IdentitiesOnly: true,
			})
			return nil
		},
	}

	var fromReport string
	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "Second pass: create employee records for identities in an artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			reportPath := ""
			if cmd.Flags().Changed("report") {
				reportPath = opts.reportPath
			}
			exitCode = sess.cli.RecordsCommand(cmd.Context(), cli.RecordsOptions{
				Output:     output(cmd),
				RosterPath: opts.rosterPath,
				FromReport: fromReport,
				ReportPath: reportPath,
			})
			return nil
		},
	}
	recordsCmd.Flags().StringVar(&fromReport, "from", "", "Artifact written by the identities pass (required)")
	_ = recordsCmd.MarkFlagRequired("from")

	oneCmd := &cobra.Command{
		Use:   "one EMAIL",
		Short: "Provision the single roster profile with EMAIL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reportPath := ""
			if cmd.Flags().Changed("report") {
				reportPath = opts.reportPath
			}
			exitCode = sess.cli.OneCommand(cmd.Context(), cli.OneOptions{
				Output:     output(cmd),
				RosterPath: opts.rosterPath,
				Email:      args[0],
				ReportPath: reportPath,
			})
			return nil
		},
	}

	completeCmd := &cobra.Command{
		Use:   "complete [EMAIL...]",
		Short: "Create missing employee records for existing identities, found by email",
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode = sess.cli.CompleteCommand(cmd.Context(), cli.CompleteOptions{
				Output:     output(cmd),
				RosterPath: opts.rosterPath,
				Emails:     args,
				ReportPath: opts.reportPath,
			})
			return nil
		},
	}

	var runID, enqueueFrom string
	enqueueCmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue roster profiles for the worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode = sess.cli.EnqueueCommand(cmd.Context(), cli.EnqueueOptions{
				Output:     output(cmd),
				RosterPath: opts.rosterPath,
				RunID:      runID,
				FromReport: enqueueFrom,
			})
			return nil
		},
	}
	enqueueCmd.Flags().StringVar(&runID, "run-id", "", "Group tasks under this run id (default: generated)")
	enqueueCmd.Flags().StringVar(&enqueueFrom, "from", "", "Queue record steps for identities in this artifact")

	collectCmd := &cobra.Command{
		Use:   "collect",
		Short: "Assemble the reports the worker stored for a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode = sess.cli.CollectCommand(cmd.Context(), cli.CollectOptions{
				Output:     output(cmd),
				RunID:      runID,
				ReportPath: opts.reportPath,
			})
			return nil
		},
	}
	collectCmd.Flags().StringVar(&runID, "run-id", "", "Run id printed by enqueue (required)")
	_ = collectCmd.MarkFlagRequired("run-id")

	root.AddCommand(runCmd, identitiesCmd, recordsCmd, oneCmd, completeCmd, enqueueCmd, collectCmd)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "provision: %v\n", err)
		return cli.ExitError
	}
	return exitCode
}
