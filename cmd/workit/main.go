package main

import (
	"github.com/Paintersrp/workit/internal/cli"
	"github.com/Paintersrp/workit/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
