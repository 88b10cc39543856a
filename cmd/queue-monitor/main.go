package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ken-Obieze/travel-tasks/internal/metrics"
)

// queue-monitor polls nsqd's stats endpoint and exports per-queue backlog
// and in-flight gauges, so alerting does not depend on the workers being
// healthy enough to report on themselves.

// nsqStats mirrors the JSON returned by nsqd's /stats endpoint.
type nsqStats struct {
	Topics []struct {
		TopicName string `json:"topic_name"`
		Channels  []struct {
			ChannelName   string `json:"channel_name"`
			Depth         int64  `json:"depth"`
			InFlightCount int64  `json:"in_flight_count"`
		} `json:"channels"`
		Depth int64 `json:"depth"`
	} `json:"topics"`
}

func main() {
	nsqdHTTPAddr := getEnv("NSQD_HTTP_ADDR", "nsqd:4151")
	port := getEnv("PORT", "8084")
	interval := getEnvInt("POLL_INTERVAL_SECONDS", 15)

	log.Printf("queue-monitor starting on :%s", port)
	log.Printf("polling nsqd at %s every %ds", nsqdHTTPAddr, interval)

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	go collect(nsqdHTTPAddr, time.Duration(interval)*time.Second)

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	http.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	log.Fatal(http.ListenAndServe(":"+port, nil))
}

func collect(nsqdHTTPAddr string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: 5 * time.Second}
	for range ticker.C {
		if err := update(client, nsqdHTTPAddr); err != nil {
			log.Printf("stats update failed: %v", err)
		}
	}
}

func update(client *http.Client, nsqdHTTPAddr string) error {
	resp, err := client.Get(fmt.Sprintf("http://%s/stats?format=json", nsqdHTTPAddr))
	if err != nil {
		return fmt.Errorf("get nsqd stats: %w", err)
	}
	defer resp.Body.Close()

	var stats nsqStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("decode nsqd stats: %w", err)
	}

	for _, topic := range stats.Topics {
		for _, channel := range topic.Channels {
			metrics.UpdateBacklog(topic.TopicName, channel.ChannelName, float64(channel.Depth))
			metrics.UpdateInflight(topic.TopicName, channel.ChannelName, float64(channel.InFlightCount))
		}
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
