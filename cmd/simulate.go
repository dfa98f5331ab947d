package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/vehicle-broker/app/plugins"
	"github.com/kilianp07/vehicle-broker/infra/logger"
	"github.com/kilianp07/vehicle-broker/simulator"
)

var simVehicles []string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Publish simulated sensor readings on the configured transport",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().StringSliceVar(&simVehicles, "vehicles", nil, "license plates to simulate (default from config)")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(simVehicles) > 0 {
		cfg.Simulator.Vehicles = simVehicles
	}
	env := plugins.NewEnv(cfg, logger.New("backend"))
	defer func() { _ = env.Close() }()
	tr, err := plugins.NewTransport(env)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	defer func() { _ = tr.Close() }()

	sim, err := simulator.New(cfg.Simulator, tr, logger.New("simulator"))
	if err != nil {
		return err
	}
	err = sim.Run(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "sent %d readings, %d failed\n", sim.Sent(), sim.Failed())
	return err
}
