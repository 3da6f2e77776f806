package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion/feed"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Date-Recurring-Index/pkg/logger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
)

func load(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Setup("feeder", cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func publish(ctx context.Context, cfg *config.Config, events []ingestion.IndexEvent) error {
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIndex)
	defer producer.Close()
	if err := publisher.New(producer).PublishBatch(ctx, events); err != nil {
		return fmt.Errorf("failed to publish events: %w", err)
	}
	slog.Info("events published", "topic", cfg.Kafka.Topics.DocumentIndex, "count", len(events))
	return nil
}

func indexCalendars(ctx context.Context, cmd *cli.Command) error {
	cfg, err := load(cmd)
	if err != nil {
		return err
	}
	if cmd.NArg() == 0 {
		return fmt.Errorf("no calendar files given")
	}

	indexName := cmd.String("index")
	loc, err := zone(cfg, indexName)
	if err != nil {
		return err
	}

	var events []ingestion.IndexEvent
	for _, path := range cmd.Args().Slice() {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		parsed, skipped, err := feed.Calendar(f, indexName, loc)
		f.Close()
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if skipped > 0 {
			slog.Warn("events without UID skipped", "file", path, "count", skipped)
		}
		slog.Info("calendar read", "file", path, "events", len(parsed))
		events = append(events, parsed...)
	}
	if len(events) == 0 {
		slog.Info("nothing to publish")
		return nil
	}
	return publish(ctx, cfg, events)
}

// zone is the default zone of the target index, or of the first index when
// the events go to every index.
func zone(cfg *config.Config, indexName string) (*time.Location, error) {
	for _, idx := range cfg.Indexes {
		if indexName == "" || idx.Name == indexName {
			return idx.Location()
		}
	}
	return nil, fmt.Errorf("index %q is not configured", indexName)
}

func unindex(ctx context.Context, cmd *cli.Command) error {
	cfg, err := load(cmd)
	if err != nil {
		return err
	}
	if cmd.NArg() == 0 {
		return fmt.Errorf("no document ids given")
	}
	ids := make([]uint32, 0, cmd.NArg())
	for _, arg := range cmd.Args().Slice() {
		id, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid document id %q: %w", arg, err)
		}
		ids = append(ids, uint32(id))
	}
	return publish(ctx, cfg, feed.Unindex(cmd.String("index"), ids))
}

func main() {
	indexFlag := &cli.StringFlag{
		Name:    "index",
		Aliases: []string{"i"},
		Usage:   "Target index; all indexes when empty",
	}
	cmd := &cli.Command{
		Name:  "dri-feeder",
		Usage: "Publish calendar events to the indexer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "configs/development.yaml",
				Sources: cli.EnvVars("DRI_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "ics",
				Usage:     "Index every VEVENT of the given iCalendar files",
				ArgsUsage: "FILE...",
				Flags:     []cli.Flag{indexFlag},
				Action:    indexCalendars,
			},
			{
				Name:      "unindex",
				Usage:     "Remove documents by id",
				ArgsUsage: "ID...",
				Flags:     []cli.Flag{indexFlag},
				Action:    unindex,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("feeder error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
