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
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print detailed version information including build date and commit hash.`,
		Run: func(cmd *cobra.Command, args []string) {
			short, _ := cmd.Flags().GetBool("short")
			if short {
				printf(cmd, "%s\n", Version)
				return
			}

			printf(cmd, "PumpLink %s\n", Version)
			printf(cmd, "  Commit:     %s\n", Commit)
			printf(cmd, "  Build Date: %s\n", BuildDate)
			printf(cmd, "  Go Version: %s\n", runtime.Version())
			printf(cmd, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
	cmd.Flags().BoolP("short", "s", false, "print only the version number")
	return cmd
}

// RegisterVersionCommand adds the version command to the root command
func RegisterVersionCommand(root *cobra.Command) {
	root.AddCommand(newVersionCmd())
}
