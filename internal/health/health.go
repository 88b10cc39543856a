package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Status struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message,omitempty"`
	Database bool   `json:"database"`
	Broker   bool   `json:"broker"`
}

// HTTPHandler reports service health: database ping and, when an nsqd HTTP
// address is given, broker reachability via its /ping endpoint.
func HTTPHandler(pool *pgxpool.Pool, nsqdHTTPAddr string) http.HandlerFunc {
	client := &http.Client{Timeout: 2 * time.Second}
	return func(w http.ResponseWriter, r *http.Request) {
		st := Status{OK: true, Message: "ok", Database: true, Broker: true}

		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				st.OK = false
				st.Message = "db ping failed"
				st.Database = false
			}
		}
		if nsqdHTTPAddr != "" {
			resp, err := client.Get(fmt.Sprintf("http://%s/ping", nsqdHTTPAddr))
			if err != nil || resp.StatusCode != http.StatusOK {
				st.OK = false
				st.Broker = false
				if st.Message == "ok" {
					st.Message = "broker ping failed"
				}
			}
			if resp != nil {
				_ = resp.Body.Close()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if !st.OK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(st)
	}
}
