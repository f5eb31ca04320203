package client

import (
	"github.com/spf13/cobra"
)

// NewReviewsCommand constructs the `reviews` command group.
func NewReviewsCommand(baseURL BaseURLFunc) *cobra.Command {
	reviewsCmd := &cobra.Command{Use: "reviews", Short: "Review session operations"}
	reviewsCmd.AddCommand(
		newReviewsStartCommand(baseURL),
		newReviewsCancelCommand(baseURL),
		newReviewsRetryCommand(baseURL),
		newReviewsCompleteCommand(baseURL),
		newReviewsQueueCommand(baseURL),
	)
	return reviewsCmd
}

func newReviewsStartCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Request a review session for a resource",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resource, _ := cmd.Flags().GetString("resource")
			content, _ := cmd.Flags().GetString("content")
			resp, err := postJSON(cmd.Context(), baseURL()+"/v1/reviews/start", map[string]any{
				"resource": resource,
				"content":  content,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().String("resource", "", "Resource key (e.g. doc-1/sec-2)")
	cmd.Flags().String("content", "", "Seed content for fallback synthesis")
	_ = cmd.MarkFlagRequired("resource")
	return cmd
}

func newReviewsCancelCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a review session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			reason, _ := cmd.Flags().GetString("reason")
			resp, err := postJSON(cmd.Context(), baseURL()+"/v1/reviews/cancel", map[string]any{
				"sessionId": session,
				"reason":    reason,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().String("session", "", "Session id")
	cmd.Flags().String("reason", "author_cancelled", "Cancellation reason")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newReviewsRetryCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Start a fresh session on a previous session's resource",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			resp, err := postJSON(cmd.Context(), baseURL()+"/v1/reviews/retry", map[string]any{
				"sessionId": session,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().String("session", "", "Previous session id")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newReviewsCompleteCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Complete the active review session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			resp, err := postJSON(cmd.Context(), baseURL()+"/v1/reviews/complete", map[string]any{
				"sessionId": session,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().String("session", "", "Session id")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newReviewsQueueCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the admission queue snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := getJSON(cmd.Context(), baseURL()+"/v1/reviews/queue")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}
