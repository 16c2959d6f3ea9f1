/*
Copyright 2024 PumpLink Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ddedalus/syringe-pump/internal/serial"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan and list available serial ports",
		Long: `Scan the system for serial ports a pump may be attached to.

Example:
  pumplink scan              # List all ports
  pumplink scan --json       # Output as JSON
  pumplink scan -v           # Show detailed port information
  pumplink scan --watch      # Report ports as they appear and disappear
  pumplink scan -p /dev/ttyACM0 -v   # Show one port, failing if it is absent`,
		RunE: runScan,
	}

	cmd.Flags().Bool("json", false, "output in JSON format")
	cmd.Flags().BoolP("verbose", "v", false, "show detailed port information")
	cmd.Flags().Bool("watch", false, "keep scanning and report changes until interrupted")
	return cmd
}

// RegisterScanCommand adds the scan command to the root command
func RegisterScanCommand(root *cobra.Command) {
	root.AddCommand(newScanCmd())
}

func runScan(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")
	watch, _ := cmd.Flags().GetBool("watch")

	scanner, err := serial.NewScanner(appConfig.Serial.ExcludePatterns)
	if err != nil {
		return err
	}

	if watch {
		interval := time.Duration(appConfig.Serial.ScanInterval) * time.Second
		scanner.WatchPorts(cmd.Context(), interval, func(added, removed, _ []serial.PortInfo) {
			for _, p := range added {
				printf(cmd, "+ %s\t%s\n", p.Name, p.Description)
			}
			for _, p := range removed {
				printf(cmd, "- %s\t%s\n", p.Name, p.Description)
			}
		})
		return nil
	}

	var ports []serial.PortInfo
	if name := appConfig.Serial.Port; name != "" {
		port, err := scanner.GetPort(name)
		if err != nil {
			return err
		}
		ports = []serial.PortInfo{*port}
	} else {
		ports, err = scanner.Scan()
		if err != nil {
			return fmt.Errorf("failed to list ports: %w", err)
		}
	}

	if len(ports) == 0 {
		if jsonOutput {
			printf(cmd, "[]\n")
		} else {
			printf(cmd, "No serial ports found.\n")
		}
		return nil
	}

	if jsonOutput {
		return printPortsJSON(cmd.OutOrStdout(), ports, verbose)
	}
	return printPortsTable(cmd.OutOrStdout(), ports, verbose)
}

func printPortsTable(out io.Writer, ports []serial.PortInfo, verbose bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	if verbose {
		fmt.Fprintln(w, "PORT\tDESCRIPTION\tHARDWARE ID\tMANUFACTURER\tPRODUCT\tSERIAL\tTYPE")
		fmt.Fprintln(w, "----\t-----------\t-----------\t------------\t-------\t------\t----")
		for _, port := range ports {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				port.Name,
				truncate(port.Description, 20),
				port.HardwareID,
				truncate(port.Manufacturer, 12),
				truncate(port.Product, 15),
				truncate(port.SerialNumber, 15),
				port.PortType,
			)
		}
	} else {
		fmt.Fprintln(w, "PORT\tDESCRIPTION\tTYPE")
		fmt.Fprintln(w, "----\t-----------\t----")
		for _, port := range ports {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				port.Name,
				truncate(port.Description, 40),
				port.PortType,
			)
		}
	}

	return w.Flush()
}

func printPortsJSON(out io.Writer, ports []serial.PortInfo, verbose bool) error {
	type portData struct {
		Name         string `json:"name"`
		Description  string `json:"description,omitempty"`
		HardwareID   string `json:"hardware_id,omitempty"`
		Manufacturer string `json:"manufacturer,omitempty"`
		Product      string `json:"product,omitempty"`
		SerialNumber string `json:"serial_number,omitempty"`
		PortType     string `json:"port_type"`
	}

	data := make([]portData, 0, len(ports))
	for _, port := range ports {
		pd := portData{
			Name:     port.Name,
			PortType: port.PortType.String(),
		}
		if verbose {
			pd.Description = port.Description
			pd.HardwareID = port.HardwareID
			pd.Manufacturer = port.Manufacturer
			pd.Product = port.Product
			pd.SerialNumber = port.SerialNumber
		}
		data = append(data, pd)
	}

	return writeJSON(out, data)
}

func writeJSON(out io.Writer, v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(out, string(output))
	return err
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
