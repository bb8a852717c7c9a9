// Package run provides the command that attaches the engine to a device.
package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andrei-cloud/keydeck/internal/app"
	"github.com/andrei-cloud/keydeck/internal/config"
	"github.com/andrei-cloud/keydeck/internal/device"
	"github.com/andrei-cloud/keydeck/internal/device/netdeck"
	"github.com/andrei-cloud/keydeck/internal/device/simdeck"
	"github.com/andrei-cloud/keydeck/internal/journal"
	"github.com/andrei-cloud/keydeck/internal/logging"
	"github.com/andrei-cloud/keydeck/internal/render"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the key engine",
		Long: `Discover plugins, attach the configured device and dispatch key presses.
The sim device runs in the terminal; the net device accepts key events over TCP.
SIGHUP rescans the plugin directory.`,
		RunE: runEngine,
	}

	// Add run command specific flags that can override config.
	cmd.Flags().String("device", "sim", "device kind (sim, net)")
	cmd.Flags().Int("keys", 6, "number of keys")
	cmd.Flags().String("address", "localhost:1600", "listen address of the net device")
	cmd.Flags().String("journal", "", "append journal lines to this file")

	// Bind run command flags to viper.
	v := config.GetViper()
	_ = v.BindPFlag("device.kind", cmd.Flags().Lookup("device"))
	_ = v.BindPFlag("device.keys", cmd.Flags().Lookup("keys"))
	_ = v.BindPFlag("device.address", cmd.Flags().Lookup("address"))
	_ = v.BindPFlag("journal.path", cmd.Flags().Lookup("journal"))

	return cmd
}

func runEngine(cmd *cobra.Command, _ []string) error {
	cfg := config.Get()
	sim := strings.EqualFold(cfg.Device.Kind, "sim")

	j, closeJournal, err := openJournal(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer closeJournal()

	if sim {
		// the terminal belongs to the simulator; the journal remains the trail.
		logging.Configure(io.Discard, cfg.Log.Level, cfg.Log.Format)
	}

	format, err := render.ParseFormat(cfg.Device.ImageFormat)
	if err != nil {
		return err
	}

	var (
		dev     device.Device
		simDeck *simdeck.Deck
	)
	if sim {
		simDeck = simdeck.New(cfg.Device.Keys)
		dev = simDeck
	} else {
		nd, err := netdeck.New(cfg.Device.Address, cfg.Device.Keys)
		if err != nil {
			return err
		}
		if err := nd.Start(); err != nil {
			return err
		}
		dev = nd
	}

	a, err := app.New(dev, j, app.Options{
		PluginDir:   cfg.Plugin.Path,
		Timeout:     cfg.Plugin.Timeout,
		Brightness:  cfg.Device.Brightness,
		KeySize:     cfg.Device.KeySize,
		ImageFormat: format,
		Queue:       cfg.Device.Queue,
		Builtins:    cfg.Builtins.Enabled,
	})
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		_ = a.Close(ctx)
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	// Rescan plugins on SIGHUP.
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(reloadChan, syscall.SIGHUP)
	defer signal.Stop(reloadChan)
	go func() {
		for range reloadChan {
			log.Info().Msg("rescanning plugins...")
			if err := a.Rescan(ctx); err != nil {
				log.Error().Err(err).Msg("failed to rescan plugins")
				continue
			}
			log.Info().Int("actions", len(a.Catalog())).Msg("plugins rescanned")
		}
	}()

	if sim {
		return simDeck.Run(ctx, a, j)
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stopChan)

	select {
	case <-stopChan:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down...")

	return nil
}

// openJournal returns the journal, backed by path when set.
func openJournal(path string) (*journal.Journal, func(), error) {
	if path == "" {
		return journal.New(nil), func() {}, nil
	}

	j, closer, err := journal.Open(path)
	if err != nil {
		return nil, nil, err
	}

	return j, func() {
		if err := closer.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close journal")
		}
	}, nil
}
