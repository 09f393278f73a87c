package scraper

import (
	"context"
	"fmt"

	"medwarehouse/internal/config"
	"medwarehouse/internal/lake"
	"medwarehouse/internal/services"
)

// FetchRequest asks a source for the recent posts of one channel.
type FetchRequest struct {
	Channel string
	// Limit caps the number of posts; zero lets the source decide.
	Limit          int
	Layout         lake.Layout
	DownloadImages bool
}

// Fetcher returns posts for one channel. Images are written beneath
// Layout.ImagesRoot() and referenced by data-dir-relative paths.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) ([]lake.Message, error)
}

// Source opens a session and runs fn with a Fetcher bound to it.
type Source interface {
	Name() string
	Open(ctx context.Context, fn func(ctx context.Context, f Fetcher) error) error
}

// NewSource selects the configured source.
func NewSource(cfg *config.Config) (Source, error) {
	switch cfg.Scraper.Source {
	case "synthetic":
		return NewSynthetic(cfg.Scraper.Seed), nil
	case "telegram":
		return NewTelegram(cfg.Telegram), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "scraping", "source", fmt.Sprintf("unknown source %q", cfg.Scraper.Source), nil)
	}
}
