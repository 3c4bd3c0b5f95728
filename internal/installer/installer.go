// Package installer implements the guided first-time setup: it checks for
// bun, installs dependencies, and records whether the MongoDB-backed server
// should be used.
package installer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Paintersrp/workit/internal/console"
	"github.com/Paintersrp/workit/internal/runtime"
	"github.com/Paintersrp/workit/internal/settings"
)

const (
	bunInstallCommand = "curl -fsSL https://bun.sh/install | bash"
	mongoURI          = "mongodb://localhost:27017/workit"
	mongoGuide        = "MONGODB_COMPASS_GUIDE.md"
)

// Output is where the installer prints.
type Output interface {
	Banner(tagline string)
	Notice(console.Notice)
}

// Options configures Run.
type Options struct {
	Dir      string
	Bun      string
	Prompter Prompter
	// Runtime runs bun install with inherited stdio.
	Runtime runtime.Runtime
	Output  Output
	Logger  *slog.Logger
}

// Result summarizes what the installer did.
type Result struct {
	HasBun       bool
	Installed    bool
	UseMongo     bool
	SettingsPath string
}

// Run walks through the installation steps.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Bun == "" {
		opts.Bun = "bun"
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	out := opts.Output
	var res Result

	out.Banner("Freelance Marketplace Platform - Installation")
	out.Notice(console.Notice{Kind: console.NoticeInfo, Text: "Welcome to the WorkiT installation script!"})
	out.Notice(console.Notice{Kind: console.NoticePlain, Text: "This script will help you set up everything you need to run WorkiT locally."})

	hasBun, err := opts.Prompter.Confirm(QuestionBun)
	if err != nil {
		return res, err
	}
	res.HasBun = hasBun
	if !hasBun {
		out.Notice(console.Notice{Kind: console.NoticePlain, Text: "Please install Bun first:"})
		out.Notice(console.Notice{Kind: console.NoticeInfo, Text: bunInstallCommand})
		thanks(out)
		return res, nil
	}

	out.Notice(console.Notice{Kind: console.NoticeInfo, Text: "Installing dependencies...", Leading: true})
	if err := installDependencies(ctx, opts); err != nil {
		out.Notice(console.Notice{Kind: console.NoticeError, Text: "Error during installation: " + err.Error()})
		return res, err
	}
	res.Installed = true
	out.Notice(console.Notice{Kind: console.NoticeSuccess, Text: "✅ Dependencies installed successfully", Leading: true})

	useMongo, err := opts.Prompter.Confirm(QuestionMongo)
	if err != nil {
		return res, err
	}
	res.UseMongo = useMongo
	if useMongo {
		out.Notice(console.Notice{Kind: console.NoticePlain, Text: "MongoDB configuration:", Leading: true})
		out.Notice(console.Notice{Kind: console.NoticePlain, Text: "1. Make sure MongoDB is installed and running"})
		out.Notice(console.Notice{Kind: console.NoticeAccess, Label: "2. Default connection string", Text: mongoURI})
		out.Notice(console.Notice{Kind: console.NoticePlain, Text: fmt.Sprintf("3. See %s for more details", mongoGuide)})
	}

	if err := settings.Save(opts.Dir, settings.Settings{Full: useMongo}); err != nil {
		return res, err
	}
	res.SettingsPath = settings.Path(opts.Dir)
	opts.Logger.Debug("settings saved", "path", res.SettingsPath, "full", useMongo)

	finalInstructions(out, useMongo)
	thanks(out)
	return res, nil
}

func installDependencies(ctx context.Context, opts Options) error {
	handle, err := opts.Runtime.Start(ctx, runtime.Spec{
		Name:    "bun install",
		Command: []string{opts.Bun, "install"},
		Dir:     opts.Dir,
		Mode:    runtime.StreamInherit,
	})
	if err != nil {
		return err
	}

	select {
	case <-handle.Done():
	case <-ctx.Done():
		if err := handle.Terminate(context.WithoutCancel(ctx)); err != nil {
			opts.Logger.Warn("terminate bun install", "err", err)
		}
		<-handle.Done()
		return ctx.Err()
	}

	exit := handle.Exit()
	if exit.Err != nil {
		return fmt.Errorf("bun install: %w", exit.Err)
	}
	if !exit.Success() {
		return fmt.Errorf("bun install %s", exit)
	}
	return nil
}

func finalInstructions(out Output, useMongo bool) {
	out.Notice(console.Notice{Kind: console.NoticeSuccess, Text: "✅ WorkiT is ready to use!", Leading: true})
	out.Notice(console.Notice{Kind: console.NoticeInfo, Text: "To start WorkiT:", Leading: true})
	if useMongo {
		out.Notice(console.Notice{Kind: console.NoticePlain, Text: "Run with MongoDB:"})
		out.Notice(console.Notice{Kind: console.NoticeInfo, Text: "  workit run --full"})
	} else {
		out.Notice(console.Notice{Kind: console.NoticePlain, Text: "Run with simple in-memory server (no MongoDB required):"})
		out.Notice(console.Notice{Kind: console.NoticeInfo, Text: "  workit run"})
	}
	out.Notice(console.Notice{Kind: console.NoticePlain, Text: "Other commands:", Leading: true})
	out.Notice(console.Notice{Kind: console.NoticePlain, Text: "  bun dev - Start the frontend only"})
	out.Notice(console.Notice{Kind: console.NoticePlain, Text: "  bun server:simple - Start the simple API server only"})
	out.Notice(console.Notice{Kind: console.NoticePlain, Text: "  bun build - Build the application for production"})
	out.Notice(console.Notice{Kind: console.NoticeInfo, Text: "For more information, see the README.md file", Leading: true})
}

func thanks(out Output) {
	out.Notice(console.Notice{Kind: console.NoticeInfo, Text: "Thanks for installing WorkiT!", Leading: true})
}
