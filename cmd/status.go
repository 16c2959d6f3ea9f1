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
	"time"

	"github.com/spf13/cobra"

	"github.com/Ddedalus/syringe-pump/internal/protocol"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Get pump motion status and counters",
		Long: `Report the pump's status prompt, dispensed volumes, rates and targets,
plus the serial port statistics of the session.

Example:
  pumplink status -p /dev/ttyACM0         # Get pump status
  pumplink status -p /dev/ttyACM0 --json  # Output as JSON`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}

	cmd.Flags().Bool("json", false, "output in JSON format")
	return cmd
}

// RegisterStatusCommand adds the status command to the root command
func RegisterStatusCommand(root *cobra.Command) {
	root.AddCommand(newStatusCmd())
}

type pumpStatus struct {
	Prompt          string      `json:"prompt"`
	State           string      `json:"state"`
	InfusedVolume   string      `json:"infused_volume"`
	WithdrawnVolume string      `json:"withdrawn_volume"`
	InfusionRate    string      `json:"infusion_rate,omitempty"`
	WithdrawalRate  string      `json:"withdrawal_rate,omitempty"`
	TargetVolume    string      `json:"target_volume,omitempty"`
	TargetTime      string      `json:"target_time,omitempty"`
	Statistics      *portCounts `json:"statistics,omitempty"`
}

type portCounts struct {
	BytesSent     uint64    `json:"bytes_sent"`
	BytesReceived uint64    `json:"bytes_received"`
	Frames        uint64    `json:"frames"`
	Errors        uint64    `json:"errors"`
	OpenedAt      time.Time `json:"opened_at"`
	LastActivity  time.Time `json:"last_activity"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return withSession(cmd, func(ctx context.Context, s *session) error {
		status, err := collectStatus(ctx, s)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), status)
		}
		printStatusTable(cmd, status)
		return nil
	})
}

func collectStatus(ctx context.Context, s *session) (pumpStatus, error) {
	var st pumpStatus

	out, err := s.Driver.Exchange(ctx, "ivolume")
	if err != nil {
		return st, err
	}
	if out.Kind == protocol.OutcomeCommandError {
		return st, out.Err()
	}
	st.Prompt = out.Response.Prompt
	st.State = describeState(out)
	st.InfusedVolume = out.Response.FirstLine()

	withdrawn, err := s.Pump.WithdrawnVolume.Get(ctx)
	if err != nil {
		return st, fmt.Errorf("failed to read withdrawn volume: %w", err)
	}
	st.WithdrawnVolume = withdrawn.String()

	target, err := s.Pump.TargetVolume.Get(ctx)
	if err != nil {
		return st, fmt.Errorf("failed to read target volume: %w", err)
	}
	if target != nil {
		st.TargetVolume = target.String()
	}

	// Rate and time queries fail while a state condition is reported.
	if out.OK() {
		irate, err := s.Pump.InfusionRate.Get(ctx)
		if err != nil {
			return st, fmt.Errorf("failed to read infusion rate: %w", err)
		}
		wrate, err := s.Pump.WithdrawalRate.Get(ctx)
		if err != nil {
			return st, fmt.Errorf("failed to read withdrawal rate: %w", err)
		}
		st.InfusionRate, st.WithdrawalRate = irate.String(), wrate.String()

		ttime, err := s.Pump.TargetTime.Get(ctx)
		if err != nil {
			return st, fmt.Errorf("failed to read target time: %w", err)
		}
		if ttime != nil {
			st.TargetTime = ttime.String()
		}
	}

	if s.Port != nil {
		stats := s.Port.Statistics()
		st.Statistics = &portCounts{
			BytesSent:     stats.BytesSent,
			BytesReceived: stats.BytesReceived,
			Frames:        stats.Frames,
			Errors:        stats.Errors,
			OpenedAt:      stats.OpenedAt,
			LastActivity:  stats.LastActivity,
		}
	}
	return st, nil
}

func describeState(out protocol.Outcome) string {
	if out.OK() {
		switch out.Response.Prompt {
		case protocol.PromptInfusing:
			return "infusing"
		case protocol.PromptWithdrawing:
			return "withdrawing"
		default:
			return "idle"
		}
	}
	if out.Direction != protocol.DirectionNone {
		return fmt.Sprintf("%s (%s)", out.State, out.Direction)
	}
	return out.State.String()
}

func printStatusTable(cmd *cobra.Command, st pumpStatus) {
	printf(cmd, "Pump Status:\n")
	printf(cmd, "  State:            %s [%s]\n", st.State, st.Prompt)
	printf(cmd, "  Infused Volume:   %s\n", st.InfusedVolume)
	printf(cmd, "  Withdrawn Volume: %s\n", st.WithdrawnVolume)
	printf(cmd, "  Infusion Rate:    %s\n", orDash(st.InfusionRate))
	printf(cmd, "  Withdrawal Rate:  %s\n", orDash(st.WithdrawalRate))
	printf(cmd, "  Target Volume:    %s\n", orDash(st.TargetVolume))
	printf(cmd, "  Target Time:      %s\n", orDash(st.TargetTime))

	if st.Statistics != nil {
		stats := st.Statistics
		printf(cmd, "\nStatistics:\n")
		printf(cmd, "  Bytes Sent:       %d\n", stats.BytesSent)
		printf(cmd, "  Bytes Received:   %d\n", stats.BytesReceived)
		printf(cmd, "  Frames:           %d\n", stats.Frames)
		printf(cmd, "  Errors:           %d\n", stats.Errors)
		printf(cmd, "  Opened At:        %s\n", stats.OpenedAt.Format(time.RFC3339))
		if !stats.LastActivity.IsZero() {
			printf(cmd, "  Last Activity:    %s\n", stats.LastActivity.Format(time.RFC3339))
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
