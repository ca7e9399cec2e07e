package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sentinelsec/sentinel/internal/alerts"
	"github.com/sentinelsec/sentinel/internal/client"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "View and manage threat alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threat alerts",
	Example: `  sentinel alerts list
  sentinel alerts list --min-level high
  sentinel alerts list --level critical --all`,
	RunE: runAlertsList,
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Mark an alert as resolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertsResolve,
}

var alertsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Record a new threat alert",
	Example: `  sentinel alerts create --title "Suspicious SSH activity" \
    --description "Repeated failed logins from external host" \
    --threat-level high --source-ip 203.0.113.7`,
	RunE: runAlertsCreate,
}

func init() {
	alertsListCmd.Flags().String("level", "", "only alerts at exactly this severity")
	alertsListCmd.Flags().String("min-level", "", "only alerts at or above this severity")
	alertsListCmd.Flags().Bool("all", false, "include resolved alerts")

	alertsCreateCmd.Flags().String("title", "", "alert title")
	alertsCreateCmd.Flags().String("description", "", "alert description")
	alertsCreateCmd.Flags().String("threat-level", "medium", "severity: info, low, medium, high, critical")
	alertsCreateCmd.Flags().String("source-ip", "", "source IP address")
	alertsCreateCmd.Flags().String("target-ip", "", "target IP address")
	alertsCreateCmd.Flags().String("attack-type", "", "attack classification")
	_ = alertsCreateCmd.MarkFlagRequired("title")
	_ = alertsCreateCmd.MarkFlagRequired("description")

	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsResolveCmd)
	alertsCmd.AddCommand(alertsCreateCmd)
	rootCmd.AddCommand(alertsCmd)
}

// newSynchronizer builds an alert synchronizer primed with the backend's
// current alert set.
func newSynchronizer(cmd *cobra.Command) (*alerts.Synchronizer, error) {
	_, _, api, err := setupRuntime()
	if err != nil {
		return nil, err
	}
	sync := alerts.NewSynchronizer(api)
	if err := sync.Refresh(cmd.Context()); err != nil {
		return nil, err
	}
	return sync, nil
}

func runAlertsList(cmd *cobra.Command, _ []string) error {
	sync, err := newSynchronizer(cmd)
	if err != nil {
		return err
	}

	level, _ := cmd.Flags().GetString("level")
	minLevel, _ := cmd.Flags().GetString("min-level")
	includeResolved, _ := cmd.Flags().GetBool("all")

	view := sync.Select(alerts.Filter{
		Level:           client.ThreatLevel(level),
		MinLevel:        client.ThreatLevel(minLevel),
		IncludeResolved: includeResolved,
	})

	if len(view) == 0 {
		fmt.Println("No matching alerts")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Severity", "Title", "Source", "Detected", "Resolved")
	for i := range view {
		a := &view[i]
		resolved := "no"
		if a.IsResolved {
			resolved = "yes"
		}
		_ = table.Append([]string{
			a.ID,
			string(a.ThreatLevel),
			a.Title,
			a.SourceIP,
			a.DetectedAt.Format(time.RFC3339),
			resolved,
		})
	}
	_ = table.Render()
	return nil
}

func runAlertsResolve(cmd *cobra.Command, args []string) error {
	sync, err := newSynchronizer(cmd)
	if err != nil {
		return err
	}

	alert, err := sync.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if alert.ResolvedAt != nil {
		fmt.Printf("Alert %s resolved at %s\n", alert.ID, alert.ResolvedAt.Format(time.RFC3339))
	} else {
		fmt.Printf("Alert %s resolved\n", alert.ID)
	}
	return nil
}

func runAlertsCreate(cmd *cobra.Command, _ []string) error {
	sync, err := newSynchronizer(cmd)
	if err != nil {
		return err
	}

	title, _ := cmd.Flags().GetString("title")
	description, _ := cmd.Flags().GetString("description")
	threatLevel, _ := cmd.Flags().GetString("threat-level")
	sourceIP, _ := cmd.Flags().GetString("source-ip")
	targetIP, _ := cmd.Flags().GetString("target-ip")
	attackType, _ := cmd.Flags().GetString("attack-type")

	alert, err := sync.Create(cmd.Context(), client.AlertCreate{
		Title:       title,
		Description: description,
		ThreatLevel: client.ThreatLevel(threatLevel),
		SourceIP:    sourceIP,
		TargetIP:    targetIP,
		AttackType:  attackType,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Alert created: %s (%s)\n", alert.ID, alert.ThreatLevel)
	return nil
}
