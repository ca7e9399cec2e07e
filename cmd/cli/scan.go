package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sentinelsec/sentinel/internal/client"
	sentinelerrors "github.com/sentinelsec/sentinel/internal/errors"
	"github.com/sentinelsec/sentinel/internal/scan"
)

var (
	scanType   string
	scanTarget string
	scanNoWait bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Submit a scan and track it to completion",
	Long: `Submit a scan job to the backend and poll it until it reaches a
terminal state. Use --no-wait to submit without tracking.

Supported scan types: network_discovery, port_scan, vulnerability_scan.`,
	Example: `  sentinel scan --type network_discovery --target 192.168.1.0/24
  sentinel scan --type port_scan --target 10.0.0.5 --no-wait`,
	RunE: runScan,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent scan jobs",
	RunE:  runHistory,
}

func init() {
	scanCmd.Flags().StringVarP(&scanType, "type", "t", "network_discovery",
		"scan type to run")
	scanCmd.Flags().StringVar(&scanTarget, "target", "",
		"target network, host, or CIDR range")
	scanCmd.Flags().BoolVar(&scanNoWait, "no-wait", false,
		"submit the scan without waiting for completion")
	_ = scanCmd.MarkFlagRequired("target")

	historyCmd.Flags().Int("limit", 20, "maximum number of scans to show")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(historyCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, logger, api, err := setupRuntime()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if scanNoWait {
		job, err := api.CreateScan(ctx, client.ScanRequest{
			ScanType: client.ScanType(scanType),
			Target:   strings.TrimSpace(scanTarget),
		})
		if err != nil {
			return err
		}
		fmt.Printf("Scan submitted: %s (%s on %s)\n", job.ID, job.ScanType, job.Target)
		return nil
	}

	settled := make(chan *client.ScanJob, 1)
	failed := make(chan error, 1)

	orchCfg := scan.DefaultConfig()
	orchCfg.PollInterval = cfg.Polling.Interval
	orchCfg.MaxConsecutiveErrors = cfg.Polling.MaxConsecutiveErrors

	orch := scan.NewOrchestrator(api, orchCfg, scan.Hooks{
		OnUpdate: func(job *client.ScanJob) {
			fmt.Printf("  %s  status=%s devices=%d vulns=%d\n",
				time.Now().Format("15:04:05"), job.Status,
				job.DevicesDiscovered, job.VulnerabilitiesFound)
		},
		OnSettled: func(job *client.ScanJob) {
			settled <- job
		},
		OnError: func(err error) {
			// Transient fetch errors retry within the poll session's
			// bound; only the session-ending error aborts the wait.
			if sentinelerrors.IsRetryable(err) {
				logger.Warn("Status fetch failed, retrying", "error", err)
				return
			}
			select {
			case failed <- err:
			default:
			}
		},
		RefreshDevices: func(ctx context.Context) {
			devices, err := api.ListDevices(ctx)
			if err != nil {
				logger.Warn("Device refresh after scan failed", "error", err)
				return
			}
			fmt.Printf("Device inventory refreshed: %d devices known\n", len(devices))
		},
		RefreshHistory: func(ctx context.Context) {
			if _, err := api.ListScans(ctx, cfg.Backend.ListLimit); err != nil {
				logger.Warn("Scan history refresh failed", "error", err)
			}
		},
	})
	defer orch.Stop()

	job, err := orch.StartScan(ctx, client.ScanType(scanType), scanTarget)
	if err != nil {
		return err
	}
	fmt.Printf("Scan %s started: %s on %s\n", job.ID, job.ScanType, job.Target)

	select {
	case final := <-settled:
		printScanResult(final)
		if final.Status == client.ScanStatusFailed {
			return fmt.Errorf("scan %s failed: %s", final.ID, final.ErrorMessage)
		}
		return nil
	case err := <-failed:
		return err
	case <-ctx.Done():
		fmt.Println("\nInterrupted, scan continues on the backend")
		return nil
	}
}

func printScanResult(job *client.ScanJob) {
	fmt.Printf("\nScan %s %s\n", job.ID, job.Status)
	if job.DurationSeconds > 0 {
		fmt.Printf("  Duration:        %.1fs\n", job.DurationSeconds)
	}
	fmt.Printf("  Devices found:   %d\n", job.DevicesDiscovered)
	fmt.Printf("  Vulnerabilities: %d\n", job.VulnerabilitiesFound)
	if job.PortsScanned > 0 {
		fmt.Printf("  Ports scanned:   %d\n", job.PortsScanned)
	}
	if job.AISummary != "" {
		fmt.Printf("  Summary:         %s\n", job.AISummary)
	}
}

func runHistory(cmd *cobra.Command, _ []string) error {
	_, _, api, err := setupRuntime()
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	scans, err := api.ListScans(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if len(scans) == 0 {
		fmt.Println("No scans recorded")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Type", "Target", "Status", "Started", "Devices", "Vulns")
	for i := range scans {
		s := &scans[i]
		started := ""
		if !s.StartedAt.IsZero() {
			started = s.StartedAt.Format(time.RFC3339)
		}
		_ = table.Append([]string{
			s.ID,
			string(s.ScanType),
			s.Target,
			string(s.Status),
			started,
			fmt.Sprintf("%d", s.DevicesDiscovered),
			fmt.Sprintf("%d", s.VulnerabilitiesFound),
		})
	}
	_ = table.Render()
	return nil
}
