package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"smoke/internal/cli"
	"smoke/internal/cli/check"
	"smoke/internal/cli/run"
	"smoke/internal/cli/runs"
	"smoke/internal/cli/target"
)

// Name is a const for the name of this component.
const Name = "smoke"

// Execute runs the smoke command tree with ctx.
func Execute(ctx context.Context) error {
	opts := &cli.Options{
		IOStreams: cli.IOStreams{Out: os.Stdout, ErrOut: os.Stderr},
	}
	return execute(ctx, newCommand(opts), opts)
}

// execute flushes the logger once cmd returns. Cobra skips post-run hooks
// after a failed RunE, which is exactly when buffered logs matter.
func execute(ctx context.Context, cmd *cobra.Command, opts *cli.Options) error {
	err := cmd.ExecuteContext(ctx)
	if opts.Log != nil {
		_ = opts.Log.Sync()
	}
	return err
}

func newCommand(opts *cli.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   Name,
		Short: Name + " runs load smoke tests against HTTP health endpoints.",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			return opts.Complete()
		},
	}

	// don't output usage on further errors raised during execution
	cmd.SilenceUsage = true
	cmd.SetErr(opts.ErrOut)

	opts.AddFlags(cmd.PersistentFlags())

	prepareTestingGroup(cmd, opts)
	prepareHistoryGroup(cmd, opts)
	return cmd
}

func prepareTestingGroup(cmd *cobra.Command, opts *cli.Options) {
	group := &cobra.Group{
		ID:    "testing",
		Title: "Testing Commands:",
	}
	cmd.AddGroup(group)

	for _, subcommand := range []*cobra.Command{
		run.NewCommand(opts),
		check.NewCommand(opts),
		target.NewCommand(opts),
	} {
		subcommand.GroupID = group.ID
		cmd.AddCommand(subcommand)
	}
}

func prepareHistoryGroup(cmd *cobra.Command, opts *cli.Options) {
	group := &cobra.Group{
		ID:    "history",
		Title: "History Commands:",
	}
	cmd.AddGroup(group)
	cmd.SetHelpCommandGroupID(group.ID)
	cmd.SetCompletionCommandGroupID(group.ID)

	for _, subcommand := range []*cobra.Command{
		runs.NewCommand(opts),
	} {
		subcommand.GroupID = group.ID
		cmd.AddCommand(subcommand)
	}
}
