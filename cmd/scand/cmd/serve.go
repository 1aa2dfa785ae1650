// Package cmd - serve command
package cmd

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"wastescan/internal/config"
	"wastescan/internal/metrics"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve Prometheus metrics",
	Long: `Expose the scanner's Prometheus metrics over HTTP at /metrics.

Example:
  scand serve
  curl localhost:9090/metrics`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	metrics.Init()

	addr := config.Get().Metrics.Addr
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	fmt.Printf("Serving metrics on %s\n", addr)
	return http.ListenAndServe(addr, mux)
}
