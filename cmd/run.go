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

	"github.com/Ddedalus/syringe-pump/internal/protocol"
	"github.com/Ddedalus/syringe-pump/internal/pump"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [infuse|withdraw]",
		Short: "Start the motor",
		Long: `Start infusing or withdrawing, optionally setting the rate and a target first.
The motor keeps running after the command exits; use "pumplink stop" to halt it.

Example:
  pumplink run infuse -p /dev/ttyACM0
  pumplink run infuse -p /dev/ttyACM0 --rate "1.5 ml/min" --target-volume "500 ul"
  pumplink run withdraw -p /dev/ttyACM0 --target-time 90s --clear`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"infuse", "withdraw"},
		RunE:      runRun,
	}

	cmd.Flags().String("rate", "", `rate for this direction, e.g. "1.5 ml/min"`)
	cmd.Flags().String("target-volume", "", `stop after this volume, e.g. "500 ul"`)
	cmd.Flags().Duration("target-time", 0, "stop after this run time")
	cmd.Flags().Bool("clear", false, "clear the volume counter for this direction first")
	return cmd
}

// RegisterRunCommand adds the run command to the root command
func RegisterRunCommand(root *cobra.Command) {
	root.AddCommand(newRunCmd())
}

func runRun(cmd *cobra.Command, args []string) error {
	dir := protocol.DirectionInfuse
	if len(args) == 1 {
		var err error
		if dir, err = pump.ParseDirection(args[0]); err != nil {
			return err
		}
	}

	rateText, _ := cmd.Flags().GetString("rate")
	volumeText, _ := cmd.Flags().GetString("target-volume")
	targetTime, _ := cmd.Flags().GetDuration("target-time")
	clearCounter, _ := cmd.Flags().GetBool("clear")

	// Parse everything before touching the pump.
	var rate, volume *pump.Quantity
	if rateText != "" {
		q, err := pump.ParseQuantity(rateText)
		if err != nil {
			return fmt.Errorf("invalid --rate: %w", err)
		}
		rate = &q
	}
	if volumeText != "" {
		q, err := pump.ParseQuantity(volumeText)
		if err != nil {
			return fmt.Errorf("invalid --target-volume: %w", err)
		}
		volume = &q
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		p := s.Pump
		counter, rateOf := p.InfusedVolume, p.InfusionRate
		if dir == protocol.DirectionWithdraw {
			counter, rateOf = p.WithdrawnVolume, p.WithdrawalRate
		}

		if clearCounter {
			if err := counter.Clear(ctx); err != nil {
				return err
			}
		}
		if rate != nil {
			if err := rateOf.Set(ctx, *rate); err != nil {
				return err
			}
		}
		if volume != nil {
			if err := p.TargetVolume.Set(ctx, *volume); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("target-time") {
			if err := p.TargetTime.Set(ctx, targetTime); err != nil {
				return err
			}
		}

		if err := p.Run(ctx, dir); err != nil {
			return err
		}

		current, err := rateOf.Get(ctx)
		if err != nil {
			return err
		}
		printf(cmd, "%s at %s\n", progressive(dir), current)
		return nil
	})
}

func progressive(dir protocol.Direction) string {
	if dir == protocol.DirectionWithdraw {
		return "withdrawing"
	}
	return "infusing"
}
