package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaunagostinho/globe-radio/internal/calibration"
	"github.com/shaunagostinho/globe-radio/internal/catalog"
	"github.com/shaunagostinho/globe-radio/internal/encoder"
	"github.com/shaunagostinho/globe-radio/internal/grid"
	"github.com/shaunagostinho/globe-radio/internal/index"
	"github.com/shaunagostinho/globe-radio/internal/metrics"
	"github.com/shaunagostinho/globe-radio/internal/player"
	"github.com/shaunagostinho/globe-radio/internal/server"
	"github.com/shaunagostinho/globe-radio/internal/tuner"
	"github.com/shaunagostinho/globe-radio/web"
)

var (
	flagConfig string
	flagDemo   bool
	flagListen string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "globeradio",
		Short: "Radio Globe - tune internet radio by turning a globe",
		Long: `Radio Globe reads two absolute encoders on a globe's axes, finds the
cities under the pointer and plays their radio stations.

Use --demo to run with a simulated globe and no hardware.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", server.DefaultConfigPath, "Path to config file")
	rootCmd.Flags().BoolVar(&flagDemo, "demo", false, "Run with a simulated globe")
	rootCmd.Flags().StringVar(&flagListen, "listen", "", "Override listen address (e.g. :8080)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the globe (default)",
		RunE:  run,
	}
	runCmd.Flags().AddFlagSet(rootCmd.Flags())

	rootCmd.AddCommand(runCmd, newIndexCmd(), newLocateCmd(), newProbeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] globe-radio starting")

	// Load config
	cfg := server.LoadConfig(flagConfig)
	if flagDemo {
		cfg.Encoder.Type = "demo"
	}
	if flagListen != "" {
		cfg.Server.ListenAddr = flagListen
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	demo := cfg.Encoder.Type == "demo"
	res := cfg.Resolution()

	cat, idx, err := loadData(cfg)
	if err != nil {
		return err
	}

	cond, err := encoder.NewConditioner(res)
	if err != nil {
		return err
	}

	// The demo globe has no physical zero point to remember.
	offsets := encoder.Offsets{}
	if !demo {
		offsets = calibration.Load(cfg.CalibrationPath())
	}

	// Create context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prov := newProvider(cfg, cat, cond)
	play := newPlayer(cfg)
	defer play.Close()

	tu, err := tuner.New(idx, cat, play, cfg.TunerConfig())
	if err != nil {
		return err
	}
	sampler := tuner.NewSampler(prov, cond, offsets, cfg.SamplerConfig())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		// The dashboard starts regardless; polling begins once connected.
		if connectWithRetry(ctx, "encoder", prov, 10) {
			metrics.EncoderConnected.Set(1)
			sampler.Run(ctx)
		}
		prov.Close()
	}()
	go func() {
		defer wg.Done()
		tu.Run(ctx, sampler.Readings())
	}()

	srv := server.New(cfg, server.Deps{
		Tuner:       tu,
		Sampler:     sampler,
		Catalog:     cat,
		Index:       idx,
		EncoderName: prov.Name(),
		PlayerName:  play.Name(),
		Demo:        demo,
	}, web.FS)
	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
	cancel()
	wg.Wait()
	log.Println("[main] stopped")
	return nil
}

// loadData loads the station catalog and its sparse index. A missing or
// malformed catalog leaves the globe running with no stations.
func loadData(cfg *server.Config) (*catalog.Catalog, *index.Index, error) {
	cat, err := catalog.Load(cfg.StationsPath())
	if err != nil {
		log.Printf("[main] %v; continuing with no stations", err)
		cat = catalog.Empty()
	}
	idx, err := index.LoadOrBuild(cat, cfg.Resolution(), cfg.IndexPaths())
	if err != nil {
		return nil, nil, err
	}
	metrics.IndexCells.Set(float64(idx.Len()))
	metrics.IndexCollisions.Set(float64(len(idx.Collisions())))
	return cat, idx, nil
}

func newProvider(cfg *server.Config, cat *catalog.Catalog, cond *encoder.Conditioner) encoder.Provider {
	switch cfg.Encoder.Type {
	case "spi":
		return encoder.NewSPI(cfg.Encoder.SPI)
	case "serial":
		sc := cfg.Encoder.Serial
		sc.Timeout = time.Duration(cfg.Encoder.ReadTimeoutMs) * time.Millisecond
		return encoder.NewSerial(sc)
	default:
		return encoder.NewDemoProvider(demoTargets(cat, cond, 12))
	}
}

// demoTargets picks up to n catalog cities for the simulated globe to
// visit, as raw encoder positions.
func demoTargets(cat *catalog.Catalog, cond *encoder.Conditioner, n int) [][2]uint16 {
	if cat.Len() == 0 {
		return nil
	}
	step := cat.Len() / n
	if step < 1 {
		step = 1
	}
	var targets [][2]uint16
	for i := 0; i < cat.Len() && len(targets) < n; i += step {
		cell := grid.ToGrid(cat.At(i).Geo, cond.Resolution())
		lat, lon := cond.Raw(cell)
		targets = append(targets, [2]uint16{lat, lon})
	}
	return targets
}

func newPlayer(cfg *server.Config) player.Player {
	if cfg.Player.Type == "mqtt" {
		p, err := player.NewMQTT(cfg.Player.MQTT)
		if err == nil {
			return p
		}
		log.Printf("[main] %v; falling back to log player", err)
	}
	return player.NewLogPlayer()
}

type connectable interface {
	Connect() error
	Close() error
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, retries up to maxAttempts
// then continues at max interval indefinitely. It reports false only when
// ctx ends first.
func connectWithRetry(ctx context.Context, name string, c connectable, maxAttempts int) bool {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		err := c.Connect()
		if err == nil {
			log.Printf("[%s] connected successfully (attempt %d)", name, attempt+1)
			return true
		}

		attempt++
		if attempt <= maxAttempts {
			log.Printf("[%s] connect attempt %d/%d failed: %v (retry in %v)",
				name, attempt, maxAttempts, err, delay)
		} else {
			log.Printf("[%s] connect attempt %d failed: %v (retry in %v)",
				name, attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func loadConfig() (*server.Config, error) {
	cfg := server.LoadConfig(flagConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", flagConfig, err)
	}
	return cfg, nil
}
