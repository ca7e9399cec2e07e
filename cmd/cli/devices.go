package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sentinelsec/sentinel/internal/client"
	"github.com/sentinelsec/sentinel/internal/errors"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage the device inventory",
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known devices",
	RunE:  runDevicesList,
}

var devicesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a device manually",
	Example: `  sentinel devices add --ip 192.168.1.50 --hostname nas01 --type server
  sentinel devices add --ip 10.0.0.9 --mac aa:bb:cc:dd:ee:ff`,
	RunE: runDevicesAdd,
}

func init() {
	devicesAddCmd.Flags().String("ip", "", "device IP address")
	devicesAddCmd.Flags().String("mac", "", "device MAC address")
	devicesAddCmd.Flags().String("hostname", "", "device hostname")
	devicesAddCmd.Flags().String("type", "unknown", "device type")
	_ = devicesAddCmd.MarkFlagRequired("ip")

	devicesCmd.AddCommand(devicesListCmd)
	devicesCmd.AddCommand(devicesAddCmd)
	rootCmd.AddCommand(devicesCmd)
}

func runDevicesList(cmd *cobra.Command, _ []string) error {
	_, _, api, err := setupRuntime()
	if err != nil {
		return err
	}

	devices, err := api.ListDevices(cmd.Context())
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No devices in inventory")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("IP", "Hostname", "Type", "Vendor", "Open Ports", "Active", "Last Seen")
	for i := range devices {
		d := &devices[i]
		ports := make([]string, 0, len(d.OpenPorts))
		for _, p := range d.OpenPorts {
			ports = append(ports, strconv.Itoa(p))
		}
		_ = table.Append([]string{
			d.IPAddress,
			d.Hostname,
			string(d.DeviceType),
			d.Vendor,
			strings.Join(ports, ","),
			strconv.FormatBool(d.IsActive),
			d.LastSeen.Format(time.RFC3339),
		})
	}
	_ = table.Render()
	fmt.Printf("\n%d devices\n", len(devices))
	return nil
}

func runDevicesAdd(cmd *cobra.Command, _ []string) error {
	_, _, api, err := setupRuntime()
	if err != nil {
		return err
	}

	ip, _ := cmd.Flags().GetString("ip")
	mac, _ := cmd.Flags().GetString("mac")
	hostname, _ := cmd.Flags().GetString("hostname")
	deviceType, _ := cmd.Flags().GetString("type")

	draft := client.DeviceCreate{
		IPAddress:  ip,
		MACAddress: mac,
		Hostname:   hostname,
		DeviceType: client.DeviceType(deviceType),
	}
	if err := validator.New().Struct(&draft); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			field := strings.ToLower(verrs[0].Field())
			return errors.NewValidationError(
				fmt.Sprintf("invalid value for %s", field), field, verrs[0].Value())
		}
		return err
	}

	device, err := api.CreateDevice(cmd.Context(), draft)
	if err != nil {
		return err
	}
	fmt.Printf("Device registered: %s (%s)\n", device.IPAddress, device.ID)
	return nil
}
