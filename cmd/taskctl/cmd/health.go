package cmd

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check reconciler service health",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := makeRequest(http.MethodGet, "/healthz", nil)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		b, _ := io.ReadAll(resp.Body)
		if outputJSON {
			printJSON(b)
			return nil
		}
		if resp.StatusCode == http.StatusOK {
			fmt.Println("Healthy")
			return nil
		}
		return fmt.Errorf("unhealthy: %s: %s", resp.Status, string(b))
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
