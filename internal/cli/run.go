package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apihttp "github.com/Paintersrp/workit/internal/api/http"
	"github.com/Paintersrp/workit/internal/console"
	"github.com/Paintersrp/workit/internal/launch"
	"github.com/Paintersrp/workit/internal/runtime"
	"github.com/Paintersrp/workit/internal/runtime/docker"
	"github.com/Paintersrp/workit/internal/runtime/process"
	"github.com/Paintersrp/workit/internal/settings"
	"github.com/Paintersrp/workit/internal/supervisor"
	"github.com/Paintersrp/workit/internal/tui"
)

const bannerTagline = "Freelance Marketplace Platform"

type runOptions struct {
	full           bool
	bun            string
	apiPort        int
	frontendPort   int
	readyDelay     time.Duration
	stopTimeout    time.Duration
	failTogether   bool
	mongoContainer bool
	mongoImage     string
	controlAddr    string
	tui            bool
}

func newRunCmd(ctx *context) *cobra.Command {
	opts := runOptions{
		bun:          launch.DefaultBun,
		apiPort:      launch.DefaultAPIPort,
		frontendPort: launch.DefaultFrontendPort,
		readyDelay:   ctx.defaults.ReadyDelay,
		stopTimeout:  ctx.defaults.StopTimeout,
		failTogether: ctx.defaults.FailTogether,
		mongoImage:   launch.DefaultMongoImage,
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the API server and the frontend dev server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			variant, err := resolveVariant(ctx.projectDir(), opts.full, cmd.Flags().Changed("full"), ctx.defaults.Variant)
			if err != nil {
				return err
			}
			return runWorkit(cmd, ctx, variant, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.full, "full", false, "Run the full MongoDB-backed server instead of the in-memory one")
	flags.StringVar(&opts.bun, "bun", opts.bun, "Bun executable used to launch both servers")
	flags.IntVar(&opts.apiPort, "api-port", opts.apiPort, "Port the API server listens on")
	flags.IntVar(&opts.frontendPort, "frontend-port", opts.frontendPort, "Port the frontend dev server listens on")
	flags.DurationVar(&opts.readyDelay, "ready-delay", opts.readyDelay, "Delay before the ready notice is printed (negative disables it)")
	flags.DurationVar(&opts.stopTimeout, "stop-timeout", opts.stopTimeout, "Maximum time to wait for the servers to stop")
	flags.BoolVar(&opts.failTogether, "fail-together", opts.failTogether, "Shut everything down when one server exits unexpectedly")
	flags.BoolVar(&opts.mongoContainer, "mongo-container", false, "Run MongoDB in a docker container alongside the full server")
	flags.StringVar(&opts.mongoImage, "mongo-image", opts.mongoImage, "Image used by --mongo-container")
	flags.StringVar(&opts.controlAddr, "control-addr", "", "Serve the local control API on this address")
	flags.Lookup("control-addr").NoOptDefVal = apihttp.DefaultAddr
	flags.BoolVar(&opts.tui, "tui", false, "Show an interactive dashboard instead of plain output")

	return cmd
}

// resolveVariant picks the variant from the --full flag when it was given,
// then from WORKIT_VARIANT, and from the settings file otherwise.
func resolveVariant(dir string, full, explicit bool, env *launch.Variant) (launch.Variant, error) {
	if explicit {
		if full {
			return launch.VariantFull, nil
		}
		return launch.VariantSimple, nil
	}
	if env != nil {
		return *env, nil
	}
	stored, found, err := settings.Load(dir)
	if err != nil {
		return launch.VariantSimple, err
	}
	if found && stored.Full {
		return launch.VariantFull, nil
	}
	return launch.VariantSimple, nil
}

func newRegistry(logger *slog.Logger, stopTimeout time.Duration) runtime.Registry {
	return runtime.NewRegistry(map[string]runtime.Factory{
		"process": func() runtime.Runtime {
			return process.New(process.WithLogger(logger))
		},
		"docker": func() runtime.Runtime {
			return docker.New(docker.WithLogger(logger), docker.WithStopGrace(stopTimeout/2))
		},
	})
}

func runWorkit(cmd *cobra.Command, ctx *context, variant launch.Variant, opts runOptions) error {
	logger, err := ctx.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	dir := ctx.projectDir()
	if err := requireDir(dir); err != nil {
		return err
	}

	plan, err := launch.Resolve(launch.Options{
		Dir:            dir,
		Variant:        variant,
		APIPort:        opts.apiPort,
		FrontendPort:   opts.frontendPort,
		Bun:            opts.bun,
		MongoContainer: opts.mongoContainer,
		MongoImage:     opts.mongoImage,
	})
	if err != nil {
		return err
	}
	logger.Debug("launch plan resolved", "variant", plan.Variant.String(), "server", plan.ServerPath(), "children", len(plan.Children))

	cfg := supervisor.Config{
		Children:     plan.Children,
		AccessPoints: plan.AccessPoints,
		ReadyDelay:   opts.readyDelay,
		StopTimeout:  opts.stopTimeout,
		FailTogether: opts.failTogether,
		Runtimes:     newRegistry(logger, opts.stopTimeout),
		Logger:       logger,
	}

	var sup *supervisor.Supervisor
	requestShutdown := func() {
		go func() {
			if err := sup.Shutdown(stdcontext.Background()); err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
				logger.Error("shutdown failed", "err", err)
			}
		}()
	}

	var ui *tui.UI
	if opts.tui {
		ui = tui.New(tui.WithQuitFunc(requestShutdown))
		cfg.Sink = ui
		cfg.Events = ui.EventSink()
		// The screen redraws on its own schedule; never stall children on it.
		cfg.LossyOutput = true
	} else {
		out := newConsole(cmd, ctx)
		cfg.Sink = out
		out.Banner(bannerTagline)
	}
	cfg.Sink.Notice(plan.Notice)

	sup = supervisor.New(cfg)
	if err := sup.Start(cmd.Context()); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	sup.WatchSignals(sigs)

	go func() {
		select {
		case <-cmd.Context().Done():
			requestShutdown()
		case <-sup.Done():
		}
	}()

	if opts.controlAddr != "" {
		stopAPI, err := startControlAPI(cmd.Context(), opts.controlAddr, newControlAPI(sup, plan.Variant), cfg.Sink, logger)
		if err != nil {
			requestShutdown()
			<-sup.Done()
			return fmt.Errorf("control API: %w", err)
		}
		defer func() {
			if err := stopAPI(); err != nil {
				logger.Warn("control API stopped with error", "err", err)
			}
		}()
	}

	if ui != nil {
		go func() {
			<-sup.Done()
			ui.Stop()
		}()
		uiErr := ui.Run(cmd.Context())
		requestShutdown()
		<-sup.Done()
		ui.CloseEvents()
		if uiErr != nil {
			return fmt.Errorf("tui: %w", uiErr)
		}
		return nil
	}

	<-sup.Done()
	return nil
}

// startControlAPI serves the control API until the returned stop function is
// called. Bind failures surface before it returns.
func startControlAPI(ctx stdcontext.Context, addr string, control *controlAPI, sink supervisor.Sink, logger *slog.Logger) (func() error, error) {
	server, err := apihttp.NewServer(apihttp.Config{Addr: addr, Controller: control})
	if err != nil {
		return nil, err
	}
	if err := server.Listen(); err != nil {
		return nil, err
	}
	serverCtx, cancel := stdcontext.WithCancel(stdcontext.WithoutCancel(ctx))
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(serverCtx)
	}()

	logger.Info("control API listening", "addr", server.Addr())
	sink.Notice(console.Notice{Kind: console.NoticeMuted, Text: "Control API listening on " + server.Addr()})

	return func() error {
		cancel()
		return <-errCh
	}, nil
}
