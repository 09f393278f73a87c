package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"medwarehouse/internal/config"
	"medwarehouse/internal/lake"
	"medwarehouse/internal/services"
)

// historyPageSize is the MTProto maximum for messages.getHistory.
const historyPageSize = 100

// Telegram reads channel history over MTProto with a stored user session.
type Telegram struct {
	cfg config.Telegram
}

// NewTelegram builds a Telegram source. No network activity happens until Open.
func NewTelegram(cfg config.Telegram) *Telegram {
	return &Telegram{cfg: cfg}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) newClient() (*telegram.Client, error) {
	if t.cfg.APIID == 0 || strings.TrimSpace(t.cfg.APIHash) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "scraping", "telegram", "api_id and api_hash are required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(t.cfg.SessionPath), 0o700); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "scraping", "telegram", "create session directory", err)
	}
	logger := zap.NewNop()
	if t.cfg.Debug {
		if dev, err := zap.NewDevelopment(); err == nil {
			logger = dev
		}
	}
	return telegram.NewClient(t.cfg.APIID, t.cfg.APIHash, telegram.Options{
		Logger:         logger,
		SessionStorage: &session.FileStorage{Path: t.cfg.SessionPath},
	}), nil
}

// Open connects with the stored session. An unauthorized session is a
// configuration error; run the interactive login first.
func (t *Telegram) Open(ctx context.Context, fn func(context.Context, Fetcher) error) error {
	client, err := t.newClient()
	if err != nil {
		return err
	}
	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return services.Wrap(services.ErrTransient, "scraping", "telegram auth status", "", err)
		}
		if !status.Authorized {
			return services.Wrap(services.ErrConfiguration, "scraping", "telegram", "session is not authorized; run medwh telegram login", nil)
		}
		return fn(ctx, &telegramFetcher{api: client.API(), dl: downloader.NewDownloader()})
	})
}

type telegramFetcher struct {
	api *tg.Client
	dl  *downloader.Downloader
}

func (f *telegramFetcher) resolve(ctx context.Context, username string) (*tg.InputPeerChannel, error) {
	resolved, err := f.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "scraping", "resolve channel", username, err)
	}
	for _, chat := range resolved.Chats {
		if ch, ok := chat.(*tg.Channel); ok {
			return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "scraping", "resolve channel", username+" is not a channel", nil)
}

func (f *telegramFetcher) Fetch(ctx context.Context, req FetchRequest) ([]lake.Message, error) {
	peer, err := f.resolve(ctx, req.Channel)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = historyPageSize
	}
	scraped := lake.NewTimestamp(time.Now())
	var out []lake.Message
	offsetID := 0
	for len(out) < limit {
		page := min(historyPageSize, limit-len(out))
		result, err := f.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    page,
		})
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "scraping", "get history", req.Channel, err)
		}
		modified, ok := result.AsModified()
		if !ok {
			break
		}
		batch := modified.GetMessages()
		if len(batch) == 0 {
			break
		}
		for _, raw := range batch {
			offsetID = raw.GetID()
			msg, ok := raw.(*tg.Message)
			if !ok {
				continue
			}
			item, err := f.convert(ctx, req, msg, scraped)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
			if len(out) >= limit {
				break
			}
		}
		if len(batch) < page {
			break
		}
	}
	return out, nil
}

func (f *telegramFetcher) convert(ctx context.Context, req FetchRequest, msg *tg.Message, scraped lake.Timestamp) (lake.Message, error) {
	views, _ := msg.GetViews()
	forwards, _ := msg.GetForwards()
	item := lake.Message{
		MessageID:   int64(msg.ID),
		ChannelName: req.Channel,
		MessageDate: lake.NewTimestamp(time.Unix(int64(msg.Date), 0)),
		MessageText: msg.Message,
		Views:       views,
		Forwards:    forwards,
		ScrapedAt:   &scraped,
	}
	photo := messagePhoto(msg)
	if photo == nil {
		return item, nil
	}
	rel := req.Layout.RelImagePath(req.Channel, item.MessageID)
	item.HasMedia = true
	item.ImagePath = &rel
	if !req.DownloadImages {
		return item, nil
	}
	thumb := largestSize(photo.Sizes)
	if thumb == "" {
		return item, nil
	}
	abs := req.Layout.Abs(rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return item, services.Wrap(services.ErrTransient, "scraping", "image directory", abs, err)
	}
	_, err := f.dl.Download(f.api, &tg.InputPhotoFileLocation{
		ID:            photo.ID,
		AccessHash:    photo.AccessHash,
		FileReference: photo.FileReference,
		ThumbSize:     thumb,
	}).ToPath(ctx, abs)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return item, err
		}
		return item, services.Wrap(services.ErrTransient, "scraping", "download photo", fmt.Sprintf("%s/%d", req.Channel, msg.ID), err)
	}
	return item, nil
}

func messagePhoto(msg *tg.Message) *tg.Photo {
	media, ok := msg.GetMedia()
	if !ok {
		return nil
	}
	mp, ok := media.(*tg.MessageMediaPhoto)
	if !ok {
		return nil
	}
	photoClass, ok := mp.GetPhoto()
	if !ok {
		return nil
	}
	photo, ok := photoClass.AsNotEmpty()
	if !ok {
		return nil
	}
	return photo
}

// largestSize returns the thumb type with the most pixels.
func largestSize(sizes []tg.PhotoSizeClass) string {
	best, bestArea := "", -1
	for _, size := range sizes {
		var typ string
		var area int
		switch s := size.(type) {
		case *tg.PhotoSize:
			typ, area = s.Type, s.W*s.H
		case *tg.PhotoSizeProgressive:
			typ, area = s.Type, s.W*s.H
		default:
			continue
		}
		if area > bestArea {
			best, bestArea = typ, area
		}
	}
	return best
}
