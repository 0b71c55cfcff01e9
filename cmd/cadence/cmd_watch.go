package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/friendsincode/cadence/internal/config"
	"github.com/friendsincode/cadence/internal/eventbus"
	"github.com/friendsincode/cadence/internal/events"
)

var watchTypes []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print events published by running drivers",
	Long: `Subscribe to the configured NATS or Redis backend and print every
driver event as one JSON object per line.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchTypes, "type", nil, "Only print these event types (e.g. pulse.fired)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.EventBackend == config.EventsMemory {
		return fmt.Errorf("watch needs CADENCE_EVENTS_BACKEND=nats or redis")
	}

	nodeID := eventbus.NodeID()
	pub, closePub, err := newPublisher(cfg, nil, nodeID)
	if err != nil {
		return err
	}
	defer closePub()
	remote, ok := pub.(eventbus.Remote)
	if !ok {
		return fmt.Errorf("backend %s cannot be watched", cfg.EventBackend)
	}

	want := make(map[events.EventType]bool, len(watchTypes))
	for _, t := range watchTypes {
		want[events.EventType(t)] = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(cmd.OutOrStdout())
	return remote.Watch(ctx, func(msg eventbus.Message) {
		if len(want) > 0 && !want[msg.EventType] {
			return
		}
		if err := enc.Encode(msg); err != nil {
			logger.Warn().Err(err).Msg("write event")
		}
	})
}
