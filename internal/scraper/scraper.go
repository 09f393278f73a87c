package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"medwarehouse/internal/config"
	"medwarehouse/internal/lake"
	"medwarehouse/internal/logging"
	"medwarehouse/internal/services"
)

// ChannelReport describes one channel of a scrape.
type ChannelReport struct {
	Channel  string `json:"channel"`
	Messages int    `json:"messages"`
	Images   int    `json:"images"`
	Path     string `json:"path,omitempty"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Report summarizes a scrape of every configured channel.
type Report struct {
	Partition string          `json:"partition"`
	Source    string          `json:"source"`
	Channels  []ChannelReport `json:"channels"`
	Messages  int             `json:"messages"`
	Images    int             `json:"images"`
	Failed    int             `json:"failed"`
}

// FailedChannels lists the channels that never produced a file.
func (r Report) FailedChannels() []string {
	var names []string
	for _, ch := range r.Channels {
		if ch.Error != "" {
			names = append(names, ch.Channel)
		}
	}
	return names
}

// Scraper writes one lake file per configured channel.
type Scraper struct {
	source   Source
	layout   lake.Layout
	channels []string
	limit    int
	download bool
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// NewScraper builds a scraper over source.
func NewScraper(cfg *config.Config, source Source, logger *slog.Logger) *Scraper {
	return &Scraper{
		source:   source,
		layout:   lake.Layout{DataDir: cfg.Paths.DataDir},
		channels: append([]string(nil), cfg.Scraper.Channels...),
		limit:    cfg.Scraper.MessagesPerChannel,
		download: cfg.Scraper.DownloadImages,
		attempts: cfg.Scraper.RetryAttempts,
		backoff:  cfg.RetryBackoff(),
		logger:   logging.NewComponentLogger(logger, "scraper"),
	}
}

// Run scrapes every channel into partition. Channels are independent: a
// channel that exhausts its retries is recorded and the rest still run. The
// returned error names the failed channels once all of them were tried.
func (s *Scraper) Run(ctx context.Context, partition string) (Report, error) {
	report := Report{Partition: partition, Source: s.source.Name()}
	if _, err := lake.ParsePartition(partition); err != nil {
		return report, services.Wrap(services.ErrValidation, "scraping", "partition", "", err)
	}
	logger := logging.WithContext(services.WithPartition(ctx, partition), s.logger)

	err := s.source.Open(ctx, func(ctx context.Context, f Fetcher) error {
		for _, channel := range s.channels {
			if err := ctx.Err(); err != nil {
				return err
			}
			cr := s.scrapeChannel(ctx, logger, f, partition, channel)
			report.Channels = append(report.Channels, cr)
			report.Messages += cr.Messages
			report.Images += cr.Images
			if cr.Error != "" {
				report.Failed++
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	logger.Info("scrape finished",
		logging.String(logging.FieldEventType, "scraper.finished"),
		logging.String("source", report.Source),
		logging.Int("channels", len(report.Channels)),
		logging.Int("messages", report.Messages),
		logging.Int("images", report.Images),
		logging.Int("failed", report.Failed),
	)
	if report.Failed > 0 {
		failed := report.FailedChannels()
		return report, services.Wrap(services.ErrTransient, "scraping", "channels",
			fmt.Sprintf("%d of %d channels failed: %s", len(failed), len(report.Channels), strings.Join(failed, ", ")), nil)
	}
	return report, nil
}

func (s *Scraper) scrapeChannel(ctx context.Context, logger *slog.Logger, f Fetcher, partition, channel string) ChannelReport {
	cr := ChannelReport{Channel: channel}
	chLogger := logger.With(logging.Channel(channel))

	var messages []lake.Message
	err := services.Retry(ctx, s.attempts, s.backoff, func(attempt int) error {
		cr.Attempts = attempt
		var err error
		messages, err = f.Fetch(ctx, FetchRequest{
			Channel:        channel,
			Limit:          s.limit,
			Layout:         s.layout,
			DownloadImages: s.download,
		})
		return err
	}, func(attempt int, err error, delay time.Duration) {
		logging.WarnWithContext(chLogger, "retrying channel", "scraper.channel_retry",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.Impact("channel scrape delayed"),
		)
	})
	if err == nil {
		cr.Path, err = s.layout.WriteChannel(partition, channel, messages)
	}
	if err != nil {
		cr.Error = err.Error()
		logging.ErrorWithContext(chLogger, "channel scrape failed", "scraper.channel_failed",
			logging.Error(err),
			logging.ErrorKind(err),
			logging.ErrorHint(err),
			logging.Int("attempts", cr.Attempts),
		)
		return cr
	}

	cr.Messages = len(messages)
	for _, msg := range messages {
		if msg.HasMedia {
			cr.Images++
		}
	}
	chLogger.Info("channel scraped",
		logging.String(logging.FieldEventType, "scraper.channel_scraped"),
		logging.Int("messages", cr.Messages),
		logging.Int("images", cr.Images),
		logging.String("path", cr.Path),
	)
	return cr
}
