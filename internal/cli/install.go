package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/workit/internal/installer"
	"github.com/Paintersrp/workit/internal/launch"
	"github.com/Paintersrp/workit/internal/runtime/process"
)

var errNonInteractive = errors.New("stdin is not a terminal; pass --yes (and --mongo if wanted) to install without prompts")

// interactiveInput reports whether prompts can be shown. Tests override it.
var interactiveInput = func() bool {
	return installer.Interactive(os.Stdin)
}

func newInstallCmd(ctx *context) *cobra.Command {
	var (
		yes   bool
		mongo bool
		bun   string
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install dependencies and choose the server variant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			dir := ctx.projectDir()
			if err := requireDir(dir); err != nil {
				return err
			}

			var prompter installer.Prompter
			switch {
			case cmd.Flags().Changed("yes") || cmd.Flags().Changed("mongo"):
				prompter = installer.StaticPrompter{
					installer.QuestionBun:   yes || mongo,
					installer.QuestionMongo: mongo,
				}
			case interactiveInput():
				prompter = installer.FormPrompter{}
			default:
				return errNonInteractive
			}

			res, err := installer.Run(cmd.Context(), installer.Options{
				Dir:      dir,
				Bun:      bun,
				Prompter: prompter,
				Runtime:  process.New(process.WithLogger(logger)),
				Output:   newConsole(cmd, ctx),
				Logger:   logger,
			})
			if err != nil && res.HasBun && !res.Installed {
				// Already printed as "Error during installation".
				return &reportedError{err: err}
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Assume Bun is installed and skip the prompts")
	cmd.Flags().BoolVar(&mongo, "mongo", false, "Configure the full MongoDB-backed server")
	cmd.Flags().StringVar(&bun, "bun", launch.DefaultBun, "Bun executable used for bun install")

	return cmd
}
