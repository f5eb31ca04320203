package client

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTelemetryCommand constructs the `telemetry` command group.
func NewTelemetryCommand(baseURL BaseURLFunc) *cobra.Command {
	telemetryCmd := &cobra.Command{Use: "telemetry", Short: "Telemetry journal operations"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded review disposition changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			reverse, _ := cmd.Flags().GetBool("reverse")

			q := url.Values{}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if reverse {
				q.Set("reverse", "true")
			}
			u := baseURL() + "/v1/telemetry/reviews"
			if enc := q.Encode(); enc != "" {
				u += "?" + enc
			}
			resp, err := getJSON(cmd.Context(), u)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	listCmd.Flags().Int("limit", 0, "Maximum records to return")
	listCmd.Flags().Bool("reverse", false, "Newest records first")
	telemetryCmd.AddCommand(listCmd)
	return telemetryCmd
}
