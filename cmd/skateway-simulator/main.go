package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruda0008/rideau-canal-sensor-simulation/common/logger"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/fleet"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serviceName = "skateway-simulator"

var (
	envFile  string
	duration time.Duration
	tick     time.Duration
	sink     string
	seed     int64
	report   string
)

var rootCmd = &cobra.Command{
	Use:           serviceName,
	Short:         "Rideau Canal skateway IoT sensor simulator",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSimulation,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect every sensor and publish readings until the duration elapses",
	RunE:  runSimulation,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate device credentials without connecting",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return service.CheckDevices(cfg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	for _, c := range []*cobra.Command{rootCmd, runCmd, checkCmd} {
		c.Flags().DurationVar(&duration, "duration", 0, "total run time (overrides SIM_DURATION)")
		c.Flags().DurationVar(&tick, "tick", 0, "interval between readings (overrides SIM_TICK_INTERVAL)")
		c.Flags().StringVar(&sink, "sink", "", "publisher sink (overrides SIM_SINK)")
	}
	for _, c := range []*cobra.Command{rootCmd, runCmd} {
		c.Flags().Int64Var(&seed, "seed", 0, "random seed, 0 for time based (overrides SIM_SEED)")
		c.Flags().StringVar(&report, "report", "", "write readings to this xlsx file (overrides SIM_REPORT_XLSX)")
	}
	rootCmd.AddCommand(runCmd, checkCmd)
}

// loadConfig applies the dotenv file, then the environment, then flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	overrides := map[string]string{}
	if flags.Changed("duration") {
		overrides["SIM_DURATION"] = duration.String()
	}
	if flags.Changed("tick") {
		overrides["SIM_TICK_INTERVAL"] = tick.String()
	}
	if flags.Changed("sink") {
		overrides["SIM_SINK"] = sink
	}
	if flags.Changed("seed") {
		overrides["SIM_SEED"] = fmt.Sprintf("%d", seed)
	}
	if flags.Changed("report") {
		overrides["SIM_REPORT_XLSX"] = report
	}
	for k, v := range overrides {
		if err := os.Setenv(k, v); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", k, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting skateway simulator",
		zap.String("sink", cfg.Simulation.Sink),
		zap.Duration("duration", cfg.Simulation.Duration),
		zap.Duration("tick_interval", cfg.Simulation.TickInterval),
	)

	svc, err := service.NewSimulatorService(cfg, log, service.WithOutput(cmd.OutOrStdout()))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := svc.Run(ctx); err != nil {
		return err
	}
	log.Info("Service stopped")
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		var missing *config.MissingCredentialsError
		var gate *fleet.GateError
		// both are already on the console
		if !errors.As(err, &missing) && !errors.As(err, &gate) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
