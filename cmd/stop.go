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

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the motor",
		Long: `Stop the motor whatever state the pump reports. With --restore the display
brightness is also reset, as at the end of an interactive session.

Example:
  pumplink stop -p /dev/ttyACM0
  pumplink stop -p /dev/ttyACM0 --restore`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			restore, _ := cmd.Flags().GetBool("restore")
			return withSession(cmd, func(ctx context.Context, s *session) error {
				var err error
				if restore {
					err = s.Pump.Close(ctx)
				} else {
					err = s.Pump.Stop(ctx)
				}
				if err != nil {
					return err
				}
				printf(cmd, "stopped\n")
				return nil
			})
		},
	}

	cmd.Flags().Bool("restore", false, "also restore the display brightness")
	return cmd
}

// RegisterStopCommand adds the stop command to the root command
func RegisterStopCommand(root *cobra.Command) {
	root.AddCommand(newStopCmd())
}
