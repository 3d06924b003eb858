package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	adactor "github.com/berfenger/p1sim/internal/adapter/actor"
	"github.com/berfenger/p1sim/internal/adapter/console"
	"github.com/berfenger/p1sim/internal/adapter/sink"
	"github.com/berfenger/p1sim/internal/config"
	"github.com/berfenger/p1sim/internal/core/actor"
	"github.com/berfenger/p1sim/internal/core/domain"
	"github.com/berfenger/p1sim/internal/core/service"
	"github.com/berfenger/p1sim/internal/metrics"
	"github.com/berfenger/p1sim/internal/server"
	"github.com/berfenger/p1sim/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/benbjohnson/clock"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// gracefulShutdown waits for a signal or a fatal meter error and stops the HTTP server.
func gracefulShutdown(apiServer *http.Server, fatal <-chan error, done chan<- error) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reason error
	select {
	case <-ctx.Done():
		log.Println("shutting down gracefully, press Ctrl+C again to force")
	case reason = <-fatal:
		log.Printf("meter failure, shutting down: %v", reason)
	}

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- reason
}

func main() {
	os.Exit(run())
}

func run() int {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return 2
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()
	logger.Info("p1sim starting", zap.String("version", versioninfo.Short()))

	location, err := cfg.Meter.Location()
	if err != nil {
		logger.Error("invalid timezone", zap.Error(err))
		return 2
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	meterMetrics := metrics.NewMeter()

	fatal := make(chan error, 1)
	onFatal := func(err error) {
		select {
		case fatal <- err:
		default:
		}
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg,
			meterActorProvider(cfg, location, meterMetrics, logger),
			mqttActorProvider(cfg, logger),
			modbusActorProvider(cfg, logger),
			onFatal, logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("could not spawn master actor", zap.Error(err))
		return 1
	}

	consoleCtx, cancelConsole := context.WithCancel(context.Background())
	defer cancelConsole()
	if cfg.Console.Enable {
		c := console.NewConsole(os.Stdin, consoleOutput(cfg), ctx, pid, logger)
		go func() {
			if err := c.Run(consoleCtx); err != nil {
				logger.Warn("console stopped", zap.Error(err))
			}
		}()
	}

	server := server.NewServer(*cfg, ctx, pid, meterMetrics.Registry)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan error, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, fatal, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Error("http server error", zap.Error(err))
		ctx.Stop(pid)
		as.Shutdown()
		return 1
	}

	// Wait for the graceful shutdown to complete
	reason := <-done
	log.Println("Graceful shutdown complete.")

	cancelConsole()
	ctx.Stop(pid)
	as.Shutdown()

	if reason != nil {
		return 1
	}
	return 0
}

// consoleOutput keeps operator messages off stdout when telegrams are written there.
func consoleOutput(cfg *config.Config) io.Writer {
	if cfg.Sink.Type == config.SINK_TYPE_STDOUT {
		return os.Stderr
	}
	return os.Stdout
}

func initConfig() (*config.Config, error) {

	// alias PORT => P1SIM_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("P1SIM_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("p1sim")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func meterActorProvider(cfg *config.Config, location *time.Location, meterMetrics *metrics.Meter, logger *zap.Logger) actor.MeterActorProvider {
	return func(es *eventstream.EventStream) *actor.MeterActor {
		clk := clock.New()

		seed := cfg.Meter.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		model := service.NewMeterModel(domain.MeterState{
			EnergyT1:       cfg.Meter.EnergyT1,
			EnergyT2:       cfg.Meter.EnergyT2,
			EnergyReturnT1: cfg.Meter.EnergyReturnT1,
			EnergyReturnT2: cfg.Meter.EnergyReturnT2,
			Power:          cfg.Meter.InitialPower,
		}, rand.New(rand.NewPCG(seed, 0)), location, clk.Now())

		telegramSink, err := sink.NewFromConfig(cfg.Sink, os.Stdout)
		if err != nil {
			// validated config, unreachable unless the sink type list drifts
			panic(fmt.Errorf("sink: %w", err))
		}
		return actor.NewMeterActor(cfg, clk, model, telegramSink, es, meterMetrics, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func modbusActorProvider(cfg *config.Config, logger *zap.Logger) actor.ModbusActorProvider {
	return func(es *eventstream.EventStream) *adactor.ModbusActor {
		return adactor.NewModbusActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("meter.interval_millis", 1000)
	viper.SetDefault("meter.identification", "/SIMULATOR")
	viper.SetDefault("meter.timezone", "")
	viper.SetDefault("meter.seed", 0)
	viper.SetDefault("meter.initial_power", 0.5)
	viper.SetDefault("meter.energy_t1", 9159.772)
	viper.SetDefault("meter.energy_t2", 6069.669)
	viper.SetDefault("meter.energy_return_t1", 0)
	viper.SetDefault("meter.energy_return_t2", 0)
	viper.SetDefault("sink.type", config.SINK_TYPE_STDOUT)
	viper.SetDefault("sink.open_timeout_millis", 5000)
	viper.SetDefault("sink.serial.port", "/dev/ttyUSB0")
	viper.SetDefault("sink.serial.baud_rate", 115200)
	viper.SetDefault("sink.tcp.address", "")
	viper.SetDefault("sink.file.path", "")
	viper.SetDefault("console.enable", true)
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.base_topic", "p1sim")
	viper.SetDefault("mqtt.publish_state", true)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("modbus.enable", false)
	viper.SetDefault("modbus.url", "tcp://0.0.0.0:5502")
	viper.SetDefault("modbus.max_clients", 4)
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
