// Package containerutil holds the engine-neutral pieces of the container
// runtimes: translating a runtime.Spec and interpreting wait results.
package containerutil

import (
	"errors"
	"fmt"
	"sort"

	"github.com/docker/go-connections/nat"

	"github.com/Paintersrp/workit/internal/runtime"
)

type PortMapping struct {
	Port     nat.Port
	Bindings []nat.PortBinding
}

type CommonSpec struct {
	Image   string
	Env     []string
	Cmd     []string
	Workdir string
	Ports   []PortMapping
}

// PrepareCommonSpec validates spec and converts it to engine-neutral form.
func PrepareCommonSpec(spec runtime.Spec) (CommonSpec, error) {
	if spec.Image == "" {
		return CommonSpec{}, errors.New("image is required")
	}
	common := CommonSpec{Image: spec.Image, Workdir: spec.Dir}

	if len(spec.Env) > 0 {
		env := make([]string, 0, len(spec.Env))
		for k, v := range spec.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		sort.Strings(env)
		common.Env = env
	}

	if len(spec.Command) > 0 {
		common.Cmd = append([]string(nil), spec.Command...)
	}

	for _, portSpec := range spec.Ports {
		mappings, err := nat.ParsePortSpec(portSpec)
		if err != nil {
			return CommonSpec{}, fmt.Errorf("parse port %q: %w", portSpec, err)
		}
		for _, mapping := range mappings {
			common.Ports = append(common.Ports, PortMapping{
				Port:     mapping.Port,
				Bindings: []nat.PortBinding{mapping.Binding},
			})
		}
	}

	return common, nil
}
