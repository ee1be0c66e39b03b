// ABOUTME: Entry point for voicectl, the voice audio command line tool
// ABOUTME: Parses global flags, builds the manager and dispatches a subcommand
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/Sendspin/sendspin-voice/internal/config"
	"github.com/Sendspin/sendspin-voice/internal/logging"
	"github.com/Sendspin/sendspin-voice/internal/metrics"
	"github.com/Sendspin/sendspin-voice/internal/version"
	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/voice"
	"github.com/rs/zerolog"
)

var (
	configPath  = flag.String("config", "", "YAML config file")
	backendName = flag.String("backend", "", "Audio backend: auto, native or subprocess (overrides config)")
	logLevel    = flag.String("log-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	logFile     = flag.String("log-file", "", "Log file path (default: stderr)")
	useTUI      = flag.Bool("tui", false, "Show the health monitor while the command runs")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// app is what every subcommand receives
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	manager *voice.Manager
	stdout  io.Writer
}

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"play":      {"Play an audio file or a test tone", runPlay},
	"record":    {"Record from the default input to stdout or a WAV file", runRecord},
	"devices":   {"List playback and recording devices", runDevices},
	"duck-demo": {"Play two tones and show ducking between them", runDuckDemo},
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "voicectl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("no command given")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, closer, err := logging.Setup(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	if *useTUI && cfg.Log.File == "" {
		// the monitor owns the terminal
		log = zerolog.Nop()
	}

	manager := voice.New(
		voice.WithConfig(cfg.Audio),
		voice.WithLogger(log),
		voice.WithDrainTimeout(cfg.DrainTimeout),
	)
	manager.SetDuckingStrategy(cfg.Ducking.Strategy, cfg.Ducking.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		reg := metrics.NewRegistry(metrics.NewCollector(manager))
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, logging.Component(log, "metrics")); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	a := &app{cfg: cfg, log: log, manager: manager, stdout: os.Stdout}

	var runErr error
	if *useTUI {
		runErr = withMonitor(ctx, a, func(ctx context.Context) error {
			return cmd.run(ctx, a, args[1:])
		})
	} else {
		runErr = cmd.run(ctx, a, args[1:])
	}

	if err := manager.Shutdown(context.Background()); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// loadConfig applies command line overrides on top of file and environment
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if *backendName != "" {
		cfg.Audio.Backend = audio.BackendPreference(*backendName)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: voicectl [flags] <command> [command flags]\n\nCommands:\n")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-10s %s\n", name, commands[name].summary)
	}

	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}

// newFlagSet builds a subcommand flag set that reports errors instead of exiting
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: voicectl %s [flags]\n", name)
		fs.PrintDefaults()
	}
	return fs
}
