package cli

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/valve-controller/internal/actuator"
	"github.com/sweeney/valve-controller/internal/clock"
	"github.com/sweeney/valve-controller/internal/logic"
)

var valveCmd = &cobra.Command{
	Use:   "valve open|close full|half|quarter|eighth",
	Short: "Move the mixing valve by a fraction of its travel",
	Long: `Drives the valve motor for the time the fraction takes, for
commissioning and manual recovery. The daemon must not be running.`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"open", "close"},
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, f, err := parseJog(args)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		hw, err := openHardware(cfg, clock.Real{}, actuator.LogProgress(log.Default()))
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer hw.Close()
		return jogValve(cmd.OutOrStdout(), hw.valve, dir, f, cfg.Valve.FullTravel)
	},
}

func parseJog(args []string) (actuator.Direction, logic.Fraction, error) {
	var dir actuator.Direction
	switch args[0] {
	case "open":
		dir = actuator.Opening
	case "close":
		dir = actuator.Closing
	default:
		return "", 0, fmt.Errorf("unknown direction %q (want open or close)", args[0])
	}
	f, err := logic.ParseFraction(args[1])
	if err != nil {
		return "", 0, err
	}
	return dir, f, nil
}

type jogger interface {
	OpenBy(f logic.Fraction) error
	CloseBy(f logic.Fraction) error
}

func jogValve(w io.Writer, v jogger, dir actuator.Direction, f logic.Fraction, fullTravel time.Duration) error {
	d := actuator.TravelTime(fullTravel, f)
	fmt.Fprintf(w, "Valve %s by %s (%v)...\n", dir, f, d)

	var err error
	if dir == actuator.Opening {
		err = v.OpenBy(f)
	} else {
		err = v.CloseBy(f)
	}
	if err != nil {
		return fmt.Errorf("valve %s: %w", dir, err)
	}
	fmt.Fprintln(w, "Done")
	return nil
}
