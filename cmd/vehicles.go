package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/vehicle-broker/app/plugins"
	"github.com/kilianp07/vehicle-broker/core/broker"
	"github.com/kilianp07/vehicle-broker/infra/logger"
)

const queryTimeout = 5 * time.Second

var (
	asJSON       bool
	historyLimit int
)

var vehiclesCmd = &cobra.Command{
	Use:   "vehicles",
	Short: "Vehicle related commands",
}

var vehiclesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List vehicles with a cached snapshot",
	RunE:  runVehiclesLs,
}

var historyCmd = &cobra.Command{
	Use:   "history <vehicleId>",
	Short: "Print the command history of a vehicle, most recent first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var sendCmd = &cobra.Command{
	Use:   "send <vehicleId> <command> [key=value...]",
	Short: "Publish a command on the vehicle's command topic",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

func init() {
	vehiclesLsCmd.Flags().BoolVar(&asJSON, "json", false, "print snapshots as JSON")
	historyCmd.Flags().BoolVar(&asJSON, "json", false, "print commands as JSON")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of commands")
	vehiclesCmd.AddCommand(vehiclesLsCmd)
	rootCmd.AddCommand(vehiclesCmd, historyCmd, sendCmd)
}

// openQuery returns a QueryService over the configured backends and a
// function releasing them.
func openQuery(withTransport bool) (*broker.QueryService, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	env := plugins.NewEnv(cfg, logger.New("backend"))
	st, err := plugins.NewStore(env)
	if err != nil {
		_ = env.Close()
		return nil, nil, fmt.Errorf("store: %w", err)
	}
	closeAll := func() {
		_ = st.Close()
		_ = env.Close()
	}
	log := logger.New("cli")
	cl := broker.NewCommandLog(st, cfg.Broker, log)
	if !withTransport {
		return broker.NewQueryService(st, cl, nil, cfg.Broker, log), closeAll, nil
	}
	tr, err := plugins.NewTransport(env)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("transport: %w", err)
	}
	return broker.NewQueryService(st, cl, tr, cfg.Broker, log), func() {
		_ = tr.Close()
		closeAll()
	}, nil
}

func runVehiclesLs(cmd *cobra.Command, args []string) error {
	q, closeFn, err := openQuery(false)
	if err != nil {
		return err
	}
	defer closeFn()
	ctx, cancel := contextWithTimeout(cmd)
	defer cancel()

	all, err := q.AllVehicles(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		return json.NewEncoder(out).Encode(all)
	}
	for _, s := range all {
		types := make([]string, 0, len(s.Fields))
		for t := range s.Fields {
			types = append(types, t)
		}
		sort.Strings(types)
		fmt.Fprintf(out, "%s\t%s\t%s\n", s.VehicleID, s.Timestamp.Format(time.RFC3339), strings.Join(types, ","))
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	q, closeFn, err := openQuery(false)
	if err != nil {
		return err
	}
	defer closeFn()
	ctx, cancel := contextWithTimeout(cmd)
	defer cancel()

	cmds, err := q.CommandHistory(ctx, args[0], historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		return json.NewEncoder(out).Encode(cmds)
	}
	for _, c := range cmds {
		params, _ := json.Marshal(c.Parameters)
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n", c.ReceivedAt.Format(time.RFC3339), c.ID, c.Name, c.Source, params)
	}
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	params := map[string]any{}
	for _, kv := range args[2:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("parameter %q: want key=value", kv)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			decoded = v
		}
		params[k] = decoded
	}
	q, closeFn, err := openQuery(true)
	if err != nil {
		return err
	}
	defer closeFn()
	ctx, cancel := contextWithTimeout(cmd)
	defer cancel()

	c, err := q.PublishCommand(ctx, args[0], args[1], params, "cli")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), c.ID)
	return nil
}
