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
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
)

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive pump session",
		Long: `Open a pump session and send each line typed as a raw command.
The reply and the classified status prompt are printed after every command.
Type "exit" or press Ctrl-D to leave; the motor is stopped and the display
brightness restored unless --keep-running is given.

Example:
  pumplink repl -p /dev/ttyACM0
  echo "version" | pumplink repl --simulate`,
		Args: cobra.NoArgs,
		RunE: runRepl,
	}

	cmd.Flags().Bool("keep-running", false, "do not stop the motor on exit")
	return cmd
}

// RegisterReplCommand adds the repl command to the root command
func RegisterReplCommand(root *cobra.Command) {
	root.AddCommand(newReplCmd())
}

// closeTimeout bounds stopping the pump when the REPL exits.
const closeTimeout = 2 * time.Second

const replHelp = `Any line is sent to the pump as a command, e.g. "irate 1 ml/min".
Built-ins:
  help    show this text
  exit    stop the motor and leave (also "quit" or Ctrl-D)
`

func runRepl(cmd *cobra.Command, args []string) error {
	keepRunning, _ := cmd.Flags().GetBool("keep-running")

	return withSession(cmd, func(ctx context.Context, s *session) error {
		editor := newLineEditor(cmd.InOrStdin(), cmd.OutOrStdout())
		defer editor.Close()

		if editor.interactive() {
			printf(cmd, "Connected to pump (session %s). Type \"help\" for help.\n", s.ID)
		}

		err := replLoop(ctx, cmd, s, editor)

		if !keepRunning {
			// The session context may already be cancelled by Ctrl-C.
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
			defer cancel()
			if cerr := s.Pump.Close(closeCtx); cerr != nil && err == nil {
				err = fmt.Errorf("failed to stop pump: %w", cerr)
			}
		}
		return err
	})
}

func replLoop(ctx context.Context, cmd *cobra.Command, s *session, editor *lineEditor) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := editor.ReadLine(prompt(s))
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "help":
			printf(cmd, "%s", replHelp)
			continue
		}

		out, err := s.Driver.Exchange(ctx, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			printf(cmd, "error: %v\n", err)
			continue
		}
		printOutcome(cmd, out)
		if out.Kind == protocol.OutcomeCommandError {
			var cmdErr *protocol.CommandError
			if errors.As(out.Err(), &cmdErr) {
				logger.Debug("pump rejected command", "command", line, "detail", cmdErr.Detail())
			}
		}
	}
}

func prompt(s *session) string {
	if addr := s.Driver.Address(); addr != protocol.NoAddress {
		return fmt.Sprintf("pump %02d> ", addr)
	}
	return "pump> "
}
