package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/workit/internal/console"
	"github.com/Paintersrp/workit/internal/launch"
	"github.com/Paintersrp/workit/internal/logging"
	"github.com/Paintersrp/workit/internal/supervisor"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	defaults := defaultsFromEnv()
	ctx := &context{
		dir:       defaults.Dir,
		logLevel:  defaults.LogLevel,
		logFormat: defaults.LogFormat,
		noColor:   defaults.NoColor,
		defaults:  defaults,
	}

	root := &cobra.Command{
		Use:     "workit",
		Short:   "Run the WorkiT API and frontend dev servers together",
		Version: Version,
	}

	root.PersistentFlags().StringVarP(&ctx.dir, "dir", "C", ctx.dir, "Project directory containing server/ and package.json")
	root.PersistentFlags().StringVar(&ctx.logLevel, "log-level", ctx.logLevel, "Diagnostic log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&ctx.logFormat, "log-format", ctx.logFormat, "Diagnostic log format (text, json)")
	root.PersistentFlags().BoolVar(&ctx.noColor, "no-color", ctx.noColor, "Disable coloured output (also NO_COLOR)")

	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newInstallCmd(ctx))
	root.AddCommand(newStatusCmd())
	root.AddCommand(newStopCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, cliCtx := newRootCommand()
	root.SetContext(ctx)
	if err := root.ExecuteContext(ctx); err != nil {
		reportError(console.New(nil, nil, cliCtx.consoleOptions()...), err)
		os.Exit(1)
	}
}

// reportedError wraps an error whose message has already been shown to the
// user. Execute exits non-zero without printing it again.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

func reportError(out *console.Console, err error) {
	var reported *reportedError
	if errors.As(err, &reported) {
		return
	}
	out.Notice(console.Notice{Kind: console.NoticeError, Text: formatError(err)})
}

func formatError(err error) string {
	var missing *supervisor.MissingTargetError
	if errors.As(err, &missing) {
		return "Error: Server file not found: " + missing.Path
	}
	return "Error: " + err.Error()
}

type context struct {
	dir       string
	logLevel  string
	logFormat string
	noColor   bool
	defaults  envDefaults
}

func (c *context) consoleOptions() []console.Option {
	if c.noColor {
		return []console.Option{console.WithColorProfile(termenv.Ascii)}
	}
	return nil
}

func (c *context) logger(w io.Writer) (*slog.Logger, error) {
	return logging.New(logging.Config{Level: c.logLevel, Format: c.logFormat, Output: w}, Version)
}

func (c *context) projectDir() string {
	if strings.TrimSpace(c.dir) == "" {
		return "."
	}
	return c.dir
}

type envDefaults struct {
	Dir          string
	ReadyDelay   time.Duration
	StopTimeout  time.Duration
	FailTogether bool
	LogLevel     string
	LogFormat    string
	NoColor      bool
	// Variant is set when WORKIT_VARIANT names a valid variant.
	Variant *launch.Variant
}

const (
	defaultReadyDelay  = 2 * time.Second
	defaultStopTimeout = 5 * time.Second
)

func defaultsFromEnv() envDefaults {
	cfg := envDefaults{
		Dir:         ".",
		ReadyDelay:  defaultReadyDelay,
		StopTimeout: defaultStopTimeout,
		LogLevel:    "warn",
		LogFormat:   "text",
	}
	if value := strings.TrimSpace(os.Getenv("WORKIT_DIR")); value != "" {
		cfg.Dir = value
	}
	// A negative ready delay disables the ready notice.
	if value := os.Getenv("WORKIT_READY_DELAY"); value != "" {
		if delay, err := time.ParseDuration(value); err == nil {
			cfg.ReadyDelay = delay
		}
	}
	if value := os.Getenv("WORKIT_STOP_TIMEOUT"); value != "" {
		if timeout, err := time.ParseDuration(value); err == nil && timeout > 0 {
			cfg.StopTimeout = timeout
		}
	}
	if value := os.Getenv("WORKIT_FAIL_TOGETHER"); value != "" {
		if enabled, err := strconv.ParseBool(value); err == nil {
			cfg.FailTogether = enabled
		}
	}
	if value := strings.TrimSpace(os.Getenv("WORKIT_LOG_LEVEL")); value != "" {
		cfg.LogLevel = value
	}
	if value := strings.TrimSpace(os.Getenv("WORKIT_LOG_FORMAT")); value != "" {
		cfg.LogFormat = value
	}
	if value := strings.TrimSpace(os.Getenv("WORKIT_VARIANT")); value != "" {
		if variant, err := launch.ParseVariant(value); err == nil {
			cfg.Variant = &variant
		}
	}
	// Any non-empty NO_COLOR disables colour, see https://no-color.org.
	if os.Getenv("NO_COLOR") != "" {
		cfg.NoColor = true
	}
	if value := os.Getenv("WORKIT_NO_COLOR"); value != "" {
		if disabled, err := strconv.ParseBool(value); err == nil {
			cfg.NoColor = disabled
		}
	}
	return cfg
}

func newConsole(cmd *cobra.Command, ctx *context) *console.Console {
	return console.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), ctx.consoleOptions()...)
}

func requireDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("project directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project directory %s is not a directory", dir)
	}
	return nil
}
