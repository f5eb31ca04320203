package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the freaq client.
// It registers the events, reviews, and telemetry command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "freaq",
		Short: "freaq client commands",
	}
	root.AddCommand(NewEventsCommand(baseURL))
	root.AddCommand(NewReviewsCommand(baseURL))
	root.AddCommand(NewTelemetryCommand(baseURL))
	return root
}
