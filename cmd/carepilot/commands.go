package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ValenteCreativo/carepilot/internal/config"
)

// sweepCmd triggers one execution pass over due approved actions on a
// running server. Meant to be called from cron.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Execute due approved actions on a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Server.CronToken == "" {
			return fmt.Errorf("CAREPILOT_CRON_TOKEN is required for sweep")
		}

		url := fmt.Sprintf("http://127.0.0.1:%d/internal/cron/execute-actions", cfg.Server.Port)
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+cfg.Server.CronToken)

		client := &http.Client{Timeout: 5 * time.Minute}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("calling server: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("sweep failed with status %d: %s", resp.StatusCode, body)
		}

		var stats struct {
			Selected  int `json:"selected"`
			Completed int `json:"completed"`
			Failed    int `json:"failed"`
		}
		if err := json.Unmarshal(body, &stats); err != nil {
			return fmt.Errorf("decoding sweep stats: %w", err)
		}
		fmt.Printf("swept %d due actions: %d completed, %d failed\n",
			stats.Selected, stats.Completed, stats.Failed)
		return nil
	},
}
