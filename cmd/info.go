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
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ddedalus/syringe-pump/internal/pump"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Get pump information",
		Long: `Query the pump's firmware, address, serial number and syringe.

Example:
  pumplink info -p /dev/ttyACM0          # Display pump information
  pumplink info -p /dev/ttyACM0 --json   # Output as JSON`,
		Args: cobra.NoArgs,
		RunE: runInfo,
	}

	cmd.Flags().Bool("json", false, "output in JSON format")
	return cmd
}

// RegisterInfoCommand adds the info command to the root command
func RegisterInfoCommand(root *cobra.Command) {
	root.AddCommand(newInfoCmd())
}

type pumpInfo struct {
	Session        string           `json:"session"`
	Version        pump.VersionInfo `json:"version"`
	Syringe        string           `json:"syringe"`
	SyringeVolume  string           `json:"syringe_volume"`
	Diameter       string           `json:"diameter"`
	QuickStartMode string           `json:"quick_start_mode"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return withSession(cmd, func(ctx context.Context, s *session) error {
		version, err := s.Pump.Version(ctx)
		if err != nil {
			return fmt.Errorf("failed to query version: %w", err)
		}
		syringe, err := s.Pump.Syringe.Manufacturer(ctx)
		if err != nil {
			return fmt.Errorf("failed to query syringe: %w", err)
		}
		mode, err := s.Pump.QuickStartMode(ctx)
		if err != nil {
			return fmt.Errorf("failed to query quick start mode: %w", err)
		}

		info := pumpInfo{
			Session:        s.ID,
			Version:        version,
			Syringe:        syringe.Manufacturer.Name(),
			SyringeVolume:  syringe.Volume.String(),
			Diameter:       syringe.Diameter.String(),
			QuickStartMode: mode,
		}

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), info)
		}
		printInfoTable(cmd, info)
		return nil
	})
}

func printInfoTable(cmd *cobra.Command, info pumpInfo) {
	printf(cmd, "Pump Information:\n")
	printf(cmd, "  Firmware:       %s\n", info.Version.Firmware)
	printf(cmd, "  Address:        %d\n", info.Version.Address)
	printf(cmd, "  Serial Number:  %s\n", info.Version.SerialNumber)
	for key, val := range info.Version.Extra {
		printf(cmd, "  %-15s %s\n", key+":", val)
	}

	printf(cmd, "\nSyringe:\n")
	printf(cmd, "  Manufacturer:   %s\n", info.Syringe)
	printf(cmd, "  Volume:         %s\n", info.SyringeVolume)
	printf(cmd, "  Diameter:       %s\n", info.Diameter)

	printf(cmd, "\nSession:\n")
	printf(cmd, "  ID:             %s\n", info.Session)
	printf(cmd, "  Quick Start:    %s\n", info.QuickStartMode)
}
