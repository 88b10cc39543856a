package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	enqueuePayload string
	enqueueQueue   string
)

// enqueueCmd represents the enqueue command
var enqueueCmd = &cobra.Command{
	Use:   "enqueue <task-name>",
	Short: "Enqueue a background task",
	Long: `Enqueue a registered background task through the reconciler service.

Example:
  taskctl enqueue send_booking_confirmation_email --payload '{"booking_id":"b1"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]any{}
		if enqueuePayload != "" {
			if err := json.Unmarshal([]byte(enqueuePayload), &payload); err != nil {
				return fmt.Errorf("invalid payload JSON: %w", err)
			}
		}

		body := map[string]any{"task": args[0], "payload": payload}
		if enqueueQueue != "" {
			body["queue"] = enqueueQueue
		}
		resp, err := makeRequest(http.MethodPost, "/tasks", body)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		b, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("enqueue failed: %s: %s", resp.Status, string(b))
		}
		if outputJSON {
			printJSON(b)
		} else {
			fmt.Printf("Enqueued %s\n", args[0])
		}
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueuePayload, "payload", "", "task payload as a JSON object")
	enqueueCmd.Flags().StringVar(&enqueueQueue, "queue", "", "override the task's registered queue")
	rootCmd.AddCommand(enqueueCmd)
}
