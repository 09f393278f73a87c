package warehouse

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"medwarehouse/internal/services"
)

type messageRow struct {
	ChannelName  string  `db:"channel_name"`
	MessageID    int64   `db:"message_id"`
	MessageDate  sqlTime `db:"message_date"`
	MessageText  string  `db:"message_text"`
	ViewCount    int     `db:"view_count"`
	ForwardCount int     `db:"forward_count"`
	HasMedia     bool    `db:"has_media"`
	ImagePath    *string `db:"image_path"`
	ScrapedAt    sqlTime `db:"scraped_at"`
	LoadedAt     sqlTime `db:"loaded_at"`
}

func (r messageRow) toMessage() Message {
	msg := Message{
		ChannelName:  r.ChannelName,
		MessageID:    r.MessageID,
		MessageDate:  r.MessageDate.Time,
		MessageText:  r.MessageText,
		ViewCount:    r.ViewCount,
		ForwardCount: r.ForwardCount,
		HasMedia:     r.HasMedia,
		ScrapedAt:    r.ScrapedAt.Time,
	}
	if r.ImagePath != nil {
		msg.ImagePath = *r.ImagePath
	}
	return msg
}

const insertMessageSQL = `INSERT INTO raw_messages (
	channel_name, message_id, message_date, message_text, view_count,
	forward_count, has_media, image_path, scraped_at, loaded_at
) VALUES (
	:channel_name, :message_id, :message_date, :message_text, :view_count,
	:forward_count, :has_media, :image_path, :scraped_at, :loaded_at
) ON CONFLICT (channel_name, message_id) DO NOTHING`

// InsertMessages inserts a batch in one transaction. Rows whose
// (channel_name, message_id) already exists are left untouched and counted
// as skipped. Any database error rolls back the whole batch.
func (s *Store) InsertMessages(ctx context.Context, messages []Message) (InsertStats, error) {
	if len(messages) == 0 {
		return InsertStats{}, nil
	}
	loadedAt := sqlTime{time.Now().UTC()}
	var stats InsertStats
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		stats = InsertStats{}
		stmt, err := tx.PrepareNamedContext(ctx, insertMessageSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, msg := range messages {
			row := messageRow{
				ChannelName:  msg.ChannelName,
				MessageID:    msg.MessageID,
				MessageDate:  sqlTime{msg.MessageDate},
				MessageText:  msg.MessageText,
				ViewCount:    msg.ViewCount,
				ForwardCount: msg.ForwardCount,
				HasMedia:     msg.HasMedia,
				ScrapedAt:    sqlTime{msg.ScrapedAt},
				LoadedAt:     loadedAt,
			}
			if msg.HasMedia && msg.ImagePath != "" {
				path := msg.ImagePath
				row.ImagePath = &path
			}
			res, err := stmt.ExecContext(ctx, row)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected > 0 {
				stats.Inserted++
			} else {
				stats.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return InsertStats{}, services.Wrap(services.ErrTransient, "warehouse", "insert messages", "batch rolled back", err)
	}
	return stats, nil
}

// ListMessages returns every raw message ordered by channel and id.
func (s *Store) ListMessages(ctx context.Context) ([]Message, error) {
	var rows []messageRow
	err := s.selectWithRetry(ctx, &rows, `SELECT channel_name, message_id, message_date, message_text,
		view_count, forward_count, has_media, image_path, scraped_at, loaded_at
		FROM raw_messages ORDER BY channel_name, message_id`)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "list messages", "", err)
	}
	out := make([]Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toMessage())
	}
	return out, nil
}

// CountMessages returns the number of raw messages.
func (s *Store) CountMessages(ctx context.Context) (int, error) {
	var count int
	if err := s.getWithRetry(ctx, &count, "SELECT COUNT(1) FROM raw_messages"); err != nil {
		return 0, services.Wrap(services.ErrTransient, "warehouse", "count messages", "", err)
	}
	return count, nil
}

// MessagesWithImages lists every raw message carrying an image path, across
// all lake partitions.
func (s *Store) MessagesWithImages(ctx context.Context) ([]Message, error) {
	query := `SELECT channel_name, message_id, message_date, message_text,
		view_count, forward_count, has_media, image_path, scraped_at, loaded_at
		FROM raw_messages WHERE has_media = ? AND image_path IS NOT NULL
		ORDER BY channel_name, message_id`
	var rows []messageRow
	if err := s.selectWithRetry(ctx, &rows, query, true); err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "list image messages", "", err)
	}
	out := make([]Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toMessage())
	}
	return out, nil
}
