package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"v2x-sim/internal/admin"
	"v2x-sim/internal/config"
	"v2x-sim/internal/logging"
	"v2x-sim/internal/orchestrator"
	"v2x-sim/internal/physics"
	"v2x-sim/internal/scenario"
	"v2x-sim/internal/sink"
	"v2x-sim/internal/transport"
)

var (
	simPrintOnly  bool
	simTUI        bool
	simConfigPath string
	simSchemaPath string
	simLogFile    string
	simBoltFile   string
	simAdminAddr  string
	simMode       string
	simSeed       int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the V2X negotiation simulator",
	Long:  "simulate steps the traffic simulation, runs the RSU and vehicle message triggers and negotiates manoeuvres over MCM.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(simConfigPath, simSchemaPath)
		if err != nil {
			return err
		}
		if simMode != "" {
			cfg.Simulation.Mode = simMode
		}
		if simSeed != 0 {
			cfg.Simulation.Seed = simSeed
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if simTUI {
			// the TUI owns the terminal
			log = logging.Discard()
		}
		slog.SetDefault(log)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		settings, err := cfg.OrchestratorSettings()
		if err != nil {
			return err
		}
		engine, err := newEngine(ctx, cfg)
		if err != nil {
			return err
		}
		var tr transport.Transport
		if settings.Mode == orchestrator.ModeV2X {
			tr = newTransport(cfg, log)
		}

		overview := overviewSettings(cfg)
		writers, cleanup, err := newWriters(writerOptions{
			PrintOnly: simPrintOnly,
			TUI:       simTUI,
			LogFile:   simLogFile,
			BoltFile:  simBoltFile,
			ShowCAM:   cfg.Logging.ShowCAMSends,
			Settings:  overview,
		})
		if err != nil {
			engine.Close()
			return err
		}
		defer cleanup()

		o, err := orchestrator.New(settings, orchestrator.Options{
			Engine:    engine,
			Transport: tr,
			Writer:    writers,
			Logger:    log,
		})
		if err != nil {
			engine.Close()
			return err
		}

		if simAdminAddr != "" {
			srv := admin.NewServer(o, overview, log)
			writers.Add(srv)
			go func() {
				log.Info("admin UI listening", "addr", simAdminAddr)
				if err := srv.Start(ctx, simAdminAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("admin server failed", "err", err)
				}
			}()
			for _, w := range writers.Writers() {
				if tw, ok := w.(*sink.TUIWriter); ok {
					tw.SetAdminStatus(true)
				}
			}
		}

		if err := o.Run(ctx); err != nil {
			return fmt.Errorf("simulation failed: %w", err)
		}
		log.Info("V2X simulation stopped", "ticks", o.Ticks())
		return nil
	},
}

func init() {
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Print events to STDOUT instead of writing to DB")
	simulateCmd.Flags().BoolVar(&simTUI, "tui", false, "Show the interactive terminal monitor")
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "config/v2x.yaml", "Path to simulation configuration YAML")
	simulateCmd.Flags().StringVar(&simSchemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	simulateCmd.Flags().StringVar(&simLogFile, "log-file", "", "Path to export the event journal (JSONL)")
	simulateCmd.Flags().StringVar(&simBoltFile, "bolt", "", "Path to a bbolt archive of the event journal")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin", ":8080", "Admin UI listen address (empty disables it)")
	simulateCmd.Flags().StringVar(&simMode, "mode", "", "Override the simulation mode (V2X or BASELINE)")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "Override the background traffic seed")
}

// newEngine connects to the bridge or builds the in-process engine.
func newEngine(ctx context.Context, cfg *config.Config) (physics.Engine, error) {
	if cfg.Physics.Backend == config.PhysicsBridge {
		b, err := physics.Listen(ctx, cfg.Physics.BridgeAddr)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	sc, err := loadScenario(cfg.Physics.Scenario)
	if err != nil {
		return nil, err
	}
	if cfg.Simulation.StepLength > 0 {
		sc.StepLength = cfg.Simulation.StepLength
	}
	if cfg.Simulation.Seed != 0 && sc.Background != nil {
		sc.Background.Seed = cfg.Simulation.Seed
	}
	s, err := physics.NewScripted(sc)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// loadScenario resolves a built-in scenario name or a scenario file.
func loadScenario(name string) (*scenario.Scenario, error) {
	if name == "" {
		name = scenario.DefaultName
	}
	if sc, ok := scenario.Lookup(name); ok {
		return sc, nil
	}
	return scenario.Load(name)
}

func newTransport(cfg *config.Config, log *slog.Logger) transport.Transport {
	dir := transport.NewDirectory(cfg.TransportStations(), log)
	topics := cfg.Topics()
	switch cfg.Transport.Backend {
	case config.BackendNATS:
		port := cfg.Transport.Port
		if port == transport.DefaultMQTTPort {
			port = transport.DefaultNATSPort
		}
		return transport.NewNATS(dir, port, topics, log)
	case config.BackendLoopback:
		return transport.NewLoopback(dir, topics)
	default:
		return transport.NewMQTT(dir, transport.MQTTOptions{
			Port:      cfg.Transport.Port,
			KeepAlive: time.Duration(cfg.Transport.KeepAlive) * time.Second,
			Topics:    topics,
			Logger:    log,
		})
	}
}

// overviewSettings lists the run parameters shown by interactive writers.
func overviewSettings(cfg *config.Config) []sink.Setting {
	scenarioName := cfg.Physics.Scenario
	if cfg.Physics.Backend == config.PhysicsBridge {
		scenarioName = "bridge " + cfg.Physics.BridgeAddr
	}
	return []sink.Setting{
		{Name: "Mode", Value: cfg.Simulation.Mode},
		{Name: "Physics", Value: scenarioName},
		{Name: "Transport", Value: cfg.Transport.Backend},
		{Name: "Stations", Value: strconv.Itoa(len(cfg.Stations))},
		{Name: "RSUs", Value: strconv.Itoa(len(cfg.RSUs))},
		{Name: "Detection radius", Value: strconv.FormatFloat(cfg.MCM.DetectionRadius, 'f', 0, 64) + " m"},
		{Name: "Pacing", Value: cfg.Simulation.RealTimeDelay.String()},
	}
}
