package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivegrid/hub/internal/hub"
	"github.com/hivegrid/hub/internal/printer"
)

var (
	statusAddr string
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a running hub's status",
	Long: `Query a running hub's status endpoint and display:
  • connection and node counts
  • active mission count
  • per-mission progress

Use --json for machine-readable output.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "Base URL of the running hub")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(statusAddr + "/status")
	if err != nil {
		return printer.Error("Hub unreachable", err.Error(), []string{
			"check that `hub serve` is running",
			"pass the hub address with --addr",
		})
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return printer.Error("Status request failed",
			fmt.Sprintf("the hub answered with HTTP %d", resp.StatusCode), nil)
	}

	var status hub.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decoding status response: %w", err)
	}

	if statusJSON {
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		printer.Println(string(out))
		return nil
	}

	printer.Printf("Instance:     %s\n", status.Instance)
	printer.Printf("Connections:  %d\n", status.Connections)
	printer.Printf("Nodes:        %d registered, %d healthy, %d connected\n",
		status.NodesRegistered, status.NodesHealthy, status.NodesConnected)
	printer.Printf("Missions:     %d active\n", status.ActiveMissions)
	for _, m := range status.Missions {
		printer.Printf("  %-24s %-10s %5.1f%%  (%d/%d tasks, %d failed)\n",
			m.Name, printer.StatusLabel(string(m.Status)), m.ProgressPercent,
			m.CompletedTasks, m.TotalTasks, m.FailedTasks)
	}
	return nil
}
