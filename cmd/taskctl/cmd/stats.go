package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue backlogs from nsqd",
	Long:  `Query nsqd's stats endpoint and print per-queue depth and in-flight counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: timeout}
		resp, err := client.Get(fmt.Sprintf("http://%s/stats?format=json", nsqdAddr))
		if err != nil {
			return fmt.Errorf("nsqd stats failed: %w", err)
		}
		defer resp.Body.Close()

		var stats struct {
			Topics []struct {
				TopicName string `json:"topic_name"`
				Depth     int64  `json:"depth"`
				Channels  []struct {
					ChannelName   string `json:"channel_name"`
					Depth         int64  `json:"depth"`
					InFlightCount int64  `json:"in_flight_count"`
				} `json:"channels"`
			} `json:"topics"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			return fmt.Errorf("decode stats: %w", err)
		}

		if outputJSON {
			b, _ := json.Marshal(stats)
			printJSON(b)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "QUEUE\tCHANNEL\tDEPTH\tIN-FLIGHT")
		for _, topic := range stats.Topics {
			if len(topic.Channels) == 0 {
				fmt.Fprintf(w, "%s\t-\t%d\t-\n", topic.TopicName, topic.Depth)
				continue
			}
			for _, ch := range topic.Channels {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", topic.TopicName, ch.ChannelName, ch.Depth, ch.InFlightCount)
			}
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
