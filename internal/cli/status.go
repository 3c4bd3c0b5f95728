package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/workit/internal/api"
	apihttp "github.com/Paintersrp/workit/internal/api/http"
)

func newStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the servers of a running workit instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := apihttp.NewClient(addr).Status(cmd.Context())
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", apihttp.DefaultAddr, "Control API address of the running instance")
	return cmd
}

func newStopCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask a running workit instance to shut down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := apihttp.NewClient(addr).RequestShutdown(cmd.Context())
			if err != nil {
				return err
			}
			state := "shutting_down"
			if result != nil && result.State != "" {
				state = result.State
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Shutdown requested (%s)\n", state)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", apihttp.DefaultAddr, "Control API address of the running instance")
	return cmd
}

func writeStatus(out io.Writer, report *api.StatusReport) error {
	fmt.Fprintf(out, "State: %s (%s server)\n\n", report.State, report.Variant)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHILD\tPID\tSTATE\tEXIT")
	for _, child := range report.Children {
		pid := "-"
		if child.PID > 0 {
			pid = strconv.Itoa(child.PID)
		}
		exit := "-"
		switch {
		case child.Killed:
			exit = "signal"
		case child.ExitCode != nil:
			exit = strconv.Itoa(*child.ExitCode)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", child.Label, pid, child.State, exit)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(report.AccessPoints) > 0 {
		fmt.Fprintln(out)
		for _, ap := range report.AccessPoints {
			switch {
			case ap.Reachable == nil:
				fmt.Fprintf(out, "%s: %s\n", ap.Name, ap.URL)
			case *ap.Reachable:
				fmt.Fprintf(out, "%s: %s (up)\n", ap.Name, ap.URL)
			default:
				fmt.Fprintf(out, "%s: %s (down)\n", ap.Name, ap.URL)
			}
		}
	}
	return nil
}
