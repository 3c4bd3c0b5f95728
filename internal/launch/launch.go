// Package launch turns the selected mode into the concrete set of children
// the supervisor runs.
package launch

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Paintersrp/workit/internal/console"
	"github.com/Paintersrp/workit/internal/supervisor"
)

const (
	DefaultAPIPort      = 5001
	DefaultFrontendPort = 5173
	DefaultBun          = "bun"
	DefaultMongoImage   = "mongo:7"

	mongoPorts = "27017:27017"
)

// Variant selects which API server script is launched.
type Variant int

const (
	// VariantSimple runs the in-memory API server.
	VariantSimple Variant = iota
	// VariantFull runs the MongoDB-backed API server.
	VariantFull
)

func (v Variant) String() string {
	if v == VariantFull {
		return "full"
	}
	return "simple"
}

// ServerFile returns the API script name under server/.
func (v Variant) ServerFile() string {
	if v == VariantFull {
		return "server.js"
	}
	return "simple-server.js"
}

// ParseVariant parses "simple" or "full".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "simple":
		return VariantSimple, nil
	case "full":
		return VariantFull, nil
	default:
		return VariantSimple, fmt.Errorf("unknown variant %q (expected simple or full)", s)
	}
}

// Options configures Resolve.
type Options struct {
	// Dir is the project root containing server/ and package.json.
	Dir          string
	Variant      Variant
	APIPort      int
	FrontendPort int
	// Bun is the bun executable.
	Bun string
	// MongoContainer adds a MongoDB container child. Full variant only.
	MongoContainer bool
	MongoImage     string
}

// Plan is everything needed to launch one variant.
type Plan struct {
	Variant      Variant
	Notice       console.Notice
	Children     []supervisor.ChildSpec
	AccessPoints []supervisor.AccessPoint
}

// ServerPath returns the API script the plan requires.
func (p Plan) ServerPath() string {
	for _, child := range p.Children {
		if child.Label == "API" && len(child.Requires) > 0 {
			return child.Requires[0]
		}
	}
	return ""
}

// Resolve builds the launch plan for opts.
func Resolve(opts Options) (Plan, error) {
	if opts.APIPort == 0 {
		opts.APIPort = DefaultAPIPort
	}
	if opts.FrontendPort == 0 {
		opts.FrontendPort = DefaultFrontendPort
	}
	if opts.Bun == "" {
		opts.Bun = DefaultBun
	}
	if opts.MongoImage == "" {
		opts.MongoImage = DefaultMongoImage
	}
	if opts.MongoContainer && opts.Variant != VariantFull {
		return Plan{}, errors.New("a MongoDB container is only used by the full variant")
	}

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return Plan{}, fmt.Errorf("resolve project dir: %w", err)
	}

	serverFile := opts.Variant.ServerFile()
	plan := Plan{
		Variant: opts.Variant,
		Notice:  variantNotice(opts.Variant),
		AccessPoints: []supervisor.AccessPoint{
			{Name: "API", URL: fmt.Sprintf("http://localhost:%d/api", opts.APIPort)},
			{Name: "Frontend", URL: fmt.Sprintf("http://localhost:%d", opts.FrontendPort)},
		},
	}

	if opts.MongoContainer {
		plan.Children = append(plan.Children, supervisor.ChildSpec{
			Label:   "MongoDB",
			Title:   "MongoDB container",
			Runtime: "docker",
			Image:   opts.MongoImage,
			Ports:   []string{mongoPorts},
			Color:   console.ColorBlue,
		})
	}

	plan.Children = append(plan.Children,
		supervisor.ChildSpec{
			Label:    "API",
			Title:    "API server",
			Command:  []string{opts.Bun, "server/" + serverFile},
			Dir:      dir,
			Color:    console.ColorCyan,
			Requires: []string{filepath.Join(dir, "server", serverFile)},
		},
		supervisor.ChildSpec{
			Label:   "Frontend",
			Title:   "frontend server",
			Command: []string{opts.Bun, "dev"},
			Dir:     dir,
			Color:   console.ColorGreen,
		},
	)
	return plan, nil
}

func variantNotice(v Variant) console.Notice {
	if v == VariantFull {
		return console.Notice{Kind: console.NoticeWarning, Text: "Running with full MongoDB server (make sure MongoDB is running)"}
	}
	return console.Notice{Kind: console.NoticeSuccess, Text: "Running with simple in-memory server (no MongoDB required)"}
}
