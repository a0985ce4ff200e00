package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the current sensor and pump readings and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := openReadout(cfg)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer p.Close()
		return printState(cmd.OutOrStdout(), p)
	},
}

// printState writes one line per reading. A failed reading is printed in
// place of the value and does not stop the others.
func printState(w io.Writer, p *readout) error {
	if t, err := p.temperature.Read(); err != nil {
		fmt.Fprintf(w, "Temperature: error: %v\n", err)
	} else {
		fmt.Fprintf(w, "Temperature: %.2f °C\n", t)
	}

	if calling, err := p.thermostat.CallingForHeat(); err != nil {
		fmt.Fprintf(w, "Thermostat: error: %v\n", err)
	} else if calling {
		fmt.Fprintln(w, "Thermostat: calling")
	} else {
		fmt.Fprintln(w, "Thermostat: idle")
	}

	on, err := p.pump.Read()
	if err != nil {
		fmt.Fprintf(w, "Pump: error: %v\n", err)
		return fmt.Errorf("read pump: %w", err)
	}
	fmt.Fprintf(w, "Pump: %s\n", stateString(on))
	return nil
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
