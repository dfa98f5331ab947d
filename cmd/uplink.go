package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/vehicle-broker/app/plugins"
	"github.com/kilianp07/vehicle-broker/core/broker"
	"github.com/kilianp07/vehicle-broker/infra/logger"
	"github.com/kilianp07/vehicle-broker/uplink"
)

var uplinkCmd = &cobra.Command{
	Use:   "uplink",
	Short: "Forward one vehicle's snapshot to the cloud API",
	RunE:  runUplink,
}

func init() {
	rootCmd.AddCommand(uplinkCmd)
}

func runUplink(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Uplink.Enabled {
		cfg.Uplink.Enabled = true
		if err := cfg.Uplink.Validate(); err != nil {
			return fmt.Errorf("uplink: %w", err)
		}
	}
	env := plugins.NewEnv(cfg, logger.New("backend"))
	defer func() { _ = env.Close() }()
	st, err := plugins.NewStore(env)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() { _ = st.Close() }()
	tr, err := plugins.NewTransport(env)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	defer func() { _ = tr.Close() }()

	log := logger.New("uplink")
	cl := broker.NewCommandLog(st, cfg.Broker, log)
	q := broker.NewQueryService(st, cl, tr, cfg.Broker, log)
	comm := uplink.NewCommunicator(cfg.Uplink, uplink.NewClient(cfg.Uplink), q, log)
	if err := comm.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	return nil
}
