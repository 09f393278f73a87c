package warehouse

import (
	"context"
	"strings"

	"medwarehouse/internal/services"
)

// TermChannelCount is the number of fact rows in one channel mentioning a term.
type TermChannelCount struct {
	ChannelName string `db:"channel_name"`
	Mentions    int    `db:"mentions"`
}

// ChannelSummary aggregates fct_messages for one channel.
type ChannelSummary struct {
	ChannelName        string  `db:"channel_name"`
	ChannelType        string  `db:"channel_type"`
	TotalMessages      int     `db:"total_messages"`
	AvgViews           float64 `db:"avg_views"`
	MessagesWithImages int     `db:"messages_with_images"`
}

// ActivityPoint is one day of channel activity.
type ActivityPoint struct {
	Date         string  `db:"full_date"`
	MessageCount int     `db:"message_count"`
	AvgViews     float64 `db:"avg_views"`
}

// SearchHit is one message matched by SearchMessages.
type SearchHit struct {
	MessageID   int64  `db:"message_id"`
	ChannelName string `db:"channel_name"`
	MessageDate string `db:"message_date"`
	MessageText string `db:"message_text"`
	Views       int    `db:"views"`
	Forwards    int    `db:"forwards"`
	HasImage    bool   `db:"has_image"`
}

// VisualCounts holds per-channel image category counts.
type VisualCounts struct {
	ChannelName    string `db:"channel_name"`
	TotalImages    int    `db:"total_images"`
	Promotional    int    `db:"promotional"`
	ProductDisplay int    `db:"product_display"`
	Lifestyle      int    `db:"lifestyle"`
	Other          int    `db:"other"`
}

// TermMentions counts, per channel, the fact rows whose text contains term
// (case-insensitive).
func (s *Store) TermMentions(ctx context.Context, term string) ([]TermChannelCount, error) {
	var rows []TermChannelCount
	err := s.selectWithRetry(ctx, &rows, `SELECT c.channel_name, COUNT(1) AS mentions
		FROM fct_messages f JOIN dim_channels c ON f.channel_key = c.channel_key
		WHERE LOWER(f.message_text) LIKE ? ESCAPE '\'
		GROUP BY c.channel_name ORDER BY c.channel_name`, containsPattern(term))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "term mentions", term, err)
	}
	return rows, nil
}

// ChannelSummaries aggregates every channel present in dim_channels.
func (s *Store) ChannelSummaries(ctx context.Context) ([]ChannelSummary, error) {
	var rows []ChannelSummary
	err := s.selectWithRetry(ctx, &rows, `SELECT c.channel_name, c.channel_type,
		COUNT(f.message_id) AS total_messages,
		COALESCE(AVG(CAST(f.view_count AS DOUBLE PRECISION)), 0) AS avg_views,
		COUNT(CASE WHEN f.has_image THEN 1 END) AS messages_with_images
		FROM dim_channels c LEFT JOIN fct_messages f ON f.channel_key = c.channel_key
		GROUP BY c.channel_key, c.channel_name, c.channel_type
		ORDER BY total_messages DESC, c.channel_name`)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "channel summaries", "", err)
	}
	return rows, nil
}

// ChannelActivity returns daily counts for channel on dates >= since
// (YYYY-MM-DD), newest first.
func (s *Store) ChannelActivity(ctx context.Context, channel, since string) ([]ActivityPoint, error) {
	var rows []ActivityPoint
	err := s.selectWithRetry(ctx, &rows, `SELECT d.full_date, COUNT(f.message_id) AS message_count,
		COALESCE(AVG(CAST(f.view_count AS DOUBLE PRECISION)), 0) AS avg_views
		FROM fct_messages f
		JOIN dim_dates d ON f.date_key = d.date_key
		JOIN dim_channels c ON f.channel_key = c.channel_key
		WHERE c.channel_name = ? AND d.full_date >= ?
		GROUP BY d.full_date ORDER BY d.full_date DESC`, channel, since)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "channel activity", channel, err)
	}
	return rows, nil
}

// ChannelExists reports whether channel is present in dim_channels.
func (s *Store) ChannelExists(ctx context.Context, channel string) (bool, error) {
	var count int
	if err := s.getWithRetry(ctx, &count, "SELECT COUNT(1) FROM dim_channels WHERE channel_name = ?", channel); err != nil {
		return false, services.Wrap(services.ErrTransient, "warehouse", "channel exists", channel, err)
	}
	return count > 0, nil
}

// SearchMessages finds fact rows whose text contains query (case-insensitive),
// ordered by views descending. An empty channel searches every channel.
func (s *Store) SearchMessages(ctx context.Context, query, channel string, limit int) ([]SearchHit, error) {
	sqlText := `SELECT f.message_id, c.channel_name, d.full_date AS message_date, f.message_text,
		f.view_count AS views, f.forward_count AS forwards, f.has_image
		FROM fct_messages f
		JOIN dim_channels c ON f.channel_key = c.channel_key
		JOIN dim_dates d ON f.date_key = d.date_key
		WHERE LOWER(f.message_text) LIKE ? ESCAPE '\'`
	args := []any{containsPattern(query)}
	if channel != "" {
		sqlText += " AND c.channel_name = ?"
		args = append(args, channel)
	}
	sqlText += " ORDER BY f.view_count DESC, c.channel_name, f.message_id LIMIT ?"
	args = append(args, limit)

	var rows []SearchHit
	if err := s.selectWithRetry(ctx, &rows, sqlText, args...); err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "search messages", "", err)
	}
	return rows, nil
}

// VisualCountsFromDetections counts image categories per channel from
// fct_image_detections, largest channels first. A missing mart yields
// ErrNotFound.
func (s *Store) VisualCountsFromDetections(ctx context.Context) ([]VisualCounts, error) {
	exists, err := s.HasDetectionMart(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, services.Wrap(services.ErrNotFound, "warehouse", "visual counts", detectionMartTable+" has not been built", nil)
	}
	var rows []VisualCounts
	err = s.selectWithRetry(ctx, &rows, `SELECT c.channel_name,
		COUNT(1) AS total_images,
		COUNT(CASE WHEN d.image_category = 'promotional' THEN 1 END) AS promotional,
		COUNT(CASE WHEN d.image_category = 'product_display' THEN 1 END) AS product_display,
		COUNT(CASE WHEN d.image_category = 'lifestyle' THEN 1 END) AS lifestyle,
		COUNT(CASE WHEN d.image_category = 'other' THEN 1 END) AS other
		FROM fct_image_detections d JOIN dim_channels c ON d.channel_key = c.channel_key
		GROUP BY c.channel_name ORDER BY total_images DESC, c.channel_name`)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "visual counts", "detections", err)
	}
	return rows, nil
}

// VisualCountsFromMessages counts images per channel from fct_messages. The
// category columns stay zero.
func (s *Store) VisualCountsFromMessages(ctx context.Context) ([]VisualCounts, error) {
	var rows []VisualCounts
	err := s.selectWithRetry(ctx, &rows, `SELECT c.channel_name,
		COUNT(CASE WHEN f.has_image THEN 1 END) AS total_images,
		0 AS promotional, 0 AS product_display, 0 AS lifestyle, 0 AS other
		FROM fct_messages f JOIN dim_channels c ON f.channel_key = c.channel_key
		GROUP BY c.channel_name ORDER BY total_images DESC, c.channel_name`)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "visual counts", "messages", err)
	}
	return rows, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}
