package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sentinelsec/sentinel/internal/alerts"
	"github.com/sentinelsec/sentinel/internal/client"
	"github.com/sentinelsec/sentinel/internal/refresh"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend health and dashboard statistics",
	RunE:  runStatus,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the local view fresh with periodic background refreshes",
	Long: `Run the background refresh loops that keep devices, dashboard
statistics, and alerts in sync with the backend. New or changed alerts
are printed as they arrive. Press Ctrl-C to stop.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	_, _, api, err := setupRuntime()
	if err != nil {
		return err
	}

	health, err := api.Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	fmt.Printf("Backend: %s (as of %s)\n\n", health.Status, health.Timestamp.Format(time.RFC3339))

	stats, err := api.DashboardStats(cmd.Context())
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	_ = table.Append([]string{"Total devices", fmt.Sprintf("%d", stats.TotalDevices)})
	_ = table.Append([]string{"Active devices", fmt.Sprintf("%d", stats.ActiveDevices)})
	_ = table.Append([]string{"Vulnerabilities", fmt.Sprintf("%d", stats.TotalVulnerabilities)})
	_ = table.Append([]string{"Critical vulnerabilities", fmt.Sprintf("%d", stats.CriticalVulnerabilities)})
	_ = table.Append([]string{"Total alerts", fmt.Sprintf("%d", stats.TotalAlerts)})
	_ = table.Append([]string{"Unresolved alerts", fmt.Sprintf("%d", stats.UnresolvedAlerts)})
	_ = table.Append([]string{"Scans today", fmt.Sprintf("%d", stats.ScansToday)})
	_ = table.Append([]string{"Network segments", fmt.Sprintf("%d", stats.NetworkSegments)})
	if stats.LastScan != nil {
		_ = table.Append([]string{"Last scan", stats.LastScan.Format(time.RFC3339)})
	}
	_ = table.Render()

	if len(stats.ThreatLevelDistribution) > 0 {
		fmt.Println("\nThreat levels:")
		levels := make([]string, 0, len(stats.ThreatLevelDistribution))
		for level := range stats.ThreatLevelDistribution {
			levels = append(levels, level)
		}
		sort.Slice(levels, func(i, j int) bool {
			return client.ThreatLevel(levels[i]).Rank() > client.ThreatLevel(levels[j]).Rank()
		})
		for _, level := range levels {
			fmt.Printf("  %-8s %d\n", level, stats.ThreatLevelDistribution[level])
		}
	}
	return nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, logger, api, err := setupRuntime()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sync := alerts.NewSynchronizer(api)
	if err := sync.Refresh(ctx); err != nil {
		return err
	}

	unresolved := func(set []client.Alert) int {
		n := 0
		for i := range set {
			if !set[i].IsResolved {
				n++
			}
		}
		return n
	}
	unsubscribe := sync.Subscribe(func(set []client.Alert) {
		fmt.Printf("%s  alerts: %d total, %d unresolved\n",
			time.Now().Format("15:04:05"), len(set), unresolved(set))
	})
	defer unsubscribe()

	sched := refresh.NewScheduler()
	if cfg.Refresh.Enabled {
		tasks := []refresh.Task{
			{
				Name:     "alerts",
				Interval: cfg.Refresh.AlertsInterval,
				Run:      sync.Refresh,
			},
			{
				Name:     "devices",
				Interval: cfg.Refresh.DevicesInterval,
				Run: func(ctx context.Context) error {
					_, err := api.ListDevices(ctx)
					return err
				},
			},
			{
				Name:     "dashboard",
				Interval: cfg.Refresh.DashboardInterval,
				Run: func(ctx context.Context) error {
					_, err := api.DashboardStats(ctx)
					return err
				},
			},
		}
		for _, task := range tasks {
			if err := sched.Add(task); err != nil {
				return err
			}
		}
	}

	sched.Start()
	defer sched.Stop()
	logger.Info("Watching backend", "endpoint", cfg.GetEndpoint())

	<-ctx.Done()
	fmt.Println("\nStopped")
	return nil
}
