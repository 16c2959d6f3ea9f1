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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Ddedalus/syringe-pump/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pumplink configuration",
		Long: `Show the effective configuration or write a default configuration file.

Example:
  pumplink config show                       # Print the merged configuration
  pumplink config show --address 2           # Flags and PUMPLINK_* variables apply
  pumplink config init                       # Write defaults to the user config path
  pumplink config init --path ./config.yaml  # Write defaults elsewhere`,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}
	initCmd.Flags().String("path", "", "destination file (default is the user config path)")
	initCmd.Flags().Bool("force", false, "overwrite an existing file")

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file in use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if used := viper.ConfigFileUsed(); used != "" {
				printf(cmd, "%s\n", used)
				return
			}
			printf(cmd, "none (defaults); user path is %s\n", config.UserConfigPath())
		},
	}

	cmd.AddCommand(showCmd, initCmd, pathCmd)
	return cmd
}

// RegisterConfigCommand adds the config command to the root command
func RegisterConfigCommand(root *cobra.Command) {
	root.AddCommand(newConfigCmd())
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(appConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	force, _ := cmd.Flags().GetBool("force")

	if path == "" {
		path = config.UserConfigPath()
		if path == "" {
			return fmt.Errorf("cannot determine user config path; use --path")
		}
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	printf(cmd, "Wrote default configuration to %s\n", path)
	return nil
}
