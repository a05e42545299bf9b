package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crawlpoint/connector/internal/cli/output"
	"github.com/crawlpoint/connector/pkg/journal"
)

var (
	statusServer   string
	statusOutput   string
	statusUsername string
	statusPassword string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Fetch and display the daemon's status counters from its dashboard
endpoint.

Examples:
  # Status of a local daemon
  connectorctl status

  # Status of a remote daemon with dashboard authentication
  connectorctl status --server http://crawler-1:5679 -u admin -p secret

  # Raw JSON for scripting
  connectorctl status -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", "http://127.0.0.1:5679", "Dashboard base URL")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json)")
	statusCmd.Flags().StringVarP(&statusUsername, "username", "u", "", "Dashboard username")
	statusCmd.Flags().StringVarP(&statusPassword, "password", "p", "", "Dashboard password")
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodGet,
		strings.TrimSuffix(statusServer, "/")+"/status", nil)
	if err != nil {
		return err
	}
	if statusUsername != "" {
		req.SetBasicAuth(statusUsername, statusPassword)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", statusServer, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return fmt.Errorf("dashboard rejected the credentials (use -u/-p)")
	default:
		return fmt.Errorf("unexpected status from daemon: %s", resp.Status)
	}

	var snap journal.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode status response: %w", err)
	}

	if format == output.FormatJSON {
		return output.PrintJSON(os.Stdout, snap)
	}
	return output.KeyValueTable(os.Stdout, statusPairs(snap))
}

func statusPairs(snap journal.Snapshot) [][2]string {
	n := strconv.FormatInt
	return [][2]string{
		{"Started", snap.StartedAt.Format(time.RFC3339)},
		{"Uptime", (time.Duration(snap.UptimeSec) * time.Second).String()},
		{"Requests total", n(snap.RequestsTotal, 10)},
		{"Requests from indexer", n(snap.RequestsIndexer, 10)},
		{"Requests denied", n(snap.RequestsDenied, 10)},
		{"Requests errored", n(snap.RequestsErrored, 10)},
		{"Feed batches pushed", n(snap.PushBatches, 10)},
		{"Feed records pushed", n(snap.PushRecords, 10)},
		{"Feed push failures", n(snap.PushFailures, 10)},
		{"Feed records rejected", n(snap.PushRejected, 10)},
		{"Full listings", n(snap.FullListings, 10)},
		{"Incremental listings", n(snap.IncrementalListings, 10)},
		{"Watchdog interruptions", n(snap.Interruptions, 10)},
	}
}
