package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// NewEventsCommand constructs the `events` command group.
func NewEventsCommand(baseURL BaseURLFunc) *cobra.Command {
	eventsCmd := &cobra.Command{Use: "events", Short: "Workspace event operations"}
	eventsCmd.AddCommand(
		newEventsPublishCommand(baseURL),
		newEventsTailCommand(baseURL),
	)
	return eventsCmd
}

func newEventsPublishCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one event to a topic/resource pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			workspace, _ := cmd.Flags().GetString("workspace")
			topic, _ := cmd.Flags().GetString("topic")
			resource, _ := cmd.Flags().GetString("resource")
			data, _ := cmd.Flags().GetString("data")

			var payload json.RawMessage
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data must be valid JSON")
				}
				payload = json.RawMessage(data)
			}
			resp, err := postJSON(cmd.Context(), baseURL()+"/v1/events/publish", map[string]any{
				"workspace": workspace,
				"topic":     topic,
				"resource":  resource,
				"payload":   payload,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().String("workspace", "", "Workspace id (server default when empty)")
	cmd.Flags().String("topic", "", "Topic name")
	cmd.Flags().String("resource", "", "Resource id")
	cmd.Flags().String("data", "", "JSON payload")
	_ = cmd.MarkFlagRequired("topic")
	_ = cmd.MarkFlagRequired("resource")
	return cmd
}

// newEventsTailCommand streams the SSE subscription feed to stdout.
func newEventsTailCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow matching events over SSE",
		RunE: func(cmd *cobra.Command, _ []string) error {
			workspace, _ := cmd.Flags().GetString("workspace")
			topics, _ := cmd.Flags().GetString("topics")
			filter, _ := cmd.Flags().GetString("filter")
			lastEventID, _ := cmd.Flags().GetString("last-event-id")

			q := url.Values{}
			q.Set("topics", topics)
			if workspace != "" {
				q.Set("workspace", workspace)
			}
			if filter != "" {
				q.Set("filter", filter)
			}
			if lastEventID != "" {
				q.Set("last_event_id", lastEventID)
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet,
				baseURL()+"/v1/events/subscribe?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unexpected status %s", resp.Status)
			}

			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(resp.Body)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Text()
				if strings.HasPrefix(line, "data: ") {
					fmt.Fprintln(out, strings.TrimPrefix(line, "data: "))
				}
			}
			return scanner.Err()
		},
	}
	cmd.Flags().String("workspace", "", "Workspace id (server default when empty)")
	cmd.Flags().String("topics", "", "Comma list of topic:resource pairs")
	cmd.Flags().String("filter", "", "CEL filter expression")
	cmd.Flags().String("last-event-id", "", "Replay anchor (topic:resource:sequence)")
	_ = cmd.MarkFlagRequired("topics")
	return cmd
}
