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

	"github.com/Ddedalus/syringe-pump/internal/protocol"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send COMMAND [ARGS...]",
		Short: "Send one raw command to the pump",
		Long: `Send a single command and print the pump's reply and status prompt.

A command error always fails. A state condition reported by the prompt
(stalled, limit switch, target reached) fails unless --state-ok is given.

Example:
  pumplink send -p /dev/ttyACM0 version
  pumplink send -p /dev/ttyACM0 irate 1.5 ml/min
  pumplink send -p /dev/ttyACM0 --state-ok ivolume
  pumplink send --simulate --json tvolume`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSend,
	}

	cmd.Flags().Bool("state-ok", false, "treat a state condition as success")
	cmd.Flags().Bool("json", false, "output in JSON format")
	return cmd
}

// RegisterSendCommand adds the send command to the root command
func RegisterSendCommand(root *cobra.Command) {
	root.AddCommand(newSendCmd())
}

type sendResult struct {
	Command   string   `json:"command"`
	Address   int      `json:"address"`
	Prompt    string   `json:"prompt"`
	Message   []string `json:"message"`
	Outcome   string   `json:"outcome"`
	State     string   `json:"state,omitempty"`
	Direction string   `json:"direction,omitempty"`
}

func newSendResult(out protocol.Outcome) sendResult {
	res := sendResult{
		Command: out.Response.Command,
		Address: out.Response.Address,
		Prompt:  out.Response.Prompt,
		Message: out.Response.Message,
		Outcome: out.Kind.String(),
	}
	if res.Message == nil {
		res.Message = []string{}
	}
	if out.Kind == protocol.OutcomeStateError {
		res.State = out.State.String()
		if out.Direction != protocol.DirectionNone {
			res.Direction = out.Direction.String()
		}
	}
	return res
}

func runSend(cmd *cobra.Command, args []string) error {
	stateOK, _ := cmd.Flags().GetBool("state-ok")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	command := joinArgs(args)

	return withSession(cmd, func(ctx context.Context, s *session) error {
		out, err := s.Driver.Exchange(ctx, command)
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := writeJSON(cmd.OutOrStdout(), newSendResult(out)); err != nil {
				return err
			}
		} else {
			printOutcome(cmd, out)
		}

		if out.Kind == protocol.OutcomeStateError && stateOK {
			logger.Warn("pump reported a state condition", "command", command, "state", out.State, "prompt", out.Response.Prompt)
			return nil
		}
		return out.Err()
	})
}

func printOutcome(cmd *cobra.Command, out protocol.Outcome) {
	for _, line := range out.Response.Message {
		printf(cmd, "%s\n", line)
	}
	switch out.Kind {
	case protocol.OutcomeStateError:
		printf(cmd, "[%s] %s\n", out.Response.Prompt, out.State)
	default:
		printf(cmd, "[%s] %s\n", out.Response.Prompt, out.Kind)
	}
}
