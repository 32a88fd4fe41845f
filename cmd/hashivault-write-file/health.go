package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/elabx-org/hashivault/internal/api"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check hashivaultd health and its Vault status (exits 1 if degraded)",
	RunE:  runHealth,
}

func init() {
	healthCmd.Flags().StringVar(&flagServer, "server", envOrDefault("HASHIVAULTD_URL", "http://hashivaultd:8766"), "hashivaultd URL")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(flagServer + "/v1/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashivault-write-file: cannot reach hashivaultd: %v\n", err)
		return err
	}
	defer resp.Body.Close()

	var h api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	fmt.Printf("status: %s  uptime: %ds\n", h.Status, h.Uptime)
	if v := h.Vault; v != nil {
		line := fmt.Sprintf("  vault  %-32s  %s", v.Address, v.Status)
		if v.Version != "" {
			line += "  v" + v.Version
		}
		if v.LatencyMs > 0 {
			line += fmt.Sprintf("  (%dms)", v.LatencyMs)
		}
		if v.Error != "" {
			line += "  error: " + v.Error
		}
		fmt.Println(line)
	}

	if h.Status != "ok" {
		return fmt.Errorf("hashivaultd status: %s", h.Status)
	}
	return nil
}
