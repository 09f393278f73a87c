package warehouse

import (
	"context"

	"github.com/jmoiron/sqlx"

	"medwarehouse/internal/services"
)

const detectionMartTable = "fct_image_detections"

// The detection mart only exists after the first enrichment, so it is created
// on demand rather than by a migration.
const createDetectionMartSQL = `CREATE TABLE IF NOT EXISTS fct_image_detections (
	message_id       BIGINT           NOT NULL,
	channel_key      INTEGER          NOT NULL,
	image_path       TEXT             NOT NULL,
	detected_class   TEXT             NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL,
	image_category   TEXT             NOT NULL,
	detection_count  INTEGER          NOT NULL,
	detected_at      TEXT             NOT NULL,
	PRIMARY KEY (message_id, image_path)
)`

type detectionFactRow struct {
	MessageID       int64   `db:"message_id"`
	ChannelKey      int     `db:"channel_key"`
	ImagePath       string  `db:"image_path"`
	DetectedClass   string  `db:"detected_class"`
	ConfidenceScore float64 `db:"confidence_score"`
	ImageCategory   string  `db:"image_category"`
	DetectionCount  int     `db:"detection_count"`
	DetectedAt      sqlTime `db:"detected_at"`
}

const insertDetectionFactSQL = `INSERT INTO fct_image_detections (message_id, channel_key, image_path,
	detected_class, confidence_score, image_category, detection_count, detected_at)
	VALUES (:message_id, :channel_key, :image_path, :detected_class, :confidence_score,
	:image_category, :detection_count, :detected_at)`

func detectionFactRows(facts []DetectionFact) []detectionFactRow {
	rows := make([]detectionFactRow, 0, len(facts))
	for _, f := range facts {
		rows = append(rows, detectionFactRow{
			MessageID:       f.MessageID,
			ChannelKey:      f.ChannelKey,
			ImagePath:       f.ImagePath,
			DetectedClass:   f.DetectedClass,
			ConfidenceScore: f.ConfidenceScore,
			ImageCategory:   f.ImageCategory,
			DetectionCount:  f.DetectionCount,
			DetectedAt:      sqlTime{f.DetectedAt},
		})
	}
	return rows
}

func replaceDetectionFacts(ctx context.Context, tx *sqlx.Tx, rows []detectionFactRow) error {
	if _, err := tx.ExecContext(ctx, createDetectionMartSQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+detectionMartTable); err != nil {
		return err
	}
	return insertNamed(ctx, tx, insertDetectionFactSQL, rows)
}

// ReplaceMarts swaps the star schema in a single transaction, including the
// detection mart when marts.WithDetections is set. On any error the previous
// marts remain in place.
func (s *Store) ReplaceMarts(ctx context.Context, marts Marts) error {
	detections := detectionFactRows(marts.Detections)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if marts.WithDetections {
			if err := replaceDetectionFacts(ctx, tx, detections); err != nil {
				return err
			}
		}
		for _, table := range []string{"fct_messages", "dim_channels", "dim_dates"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		if err := insertNamed(ctx, tx, `INSERT INTO dim_channels (channel_key, channel_name, channel_type, total_posts, avg_views)
			VALUES (:channel_key, :channel_name, :channel_type, :total_posts, :avg_views)`, marts.Channels); err != nil {
			return err
		}
		if err := insertNamed(ctx, tx, `INSERT INTO dim_dates (date_key, full_date, year, quarter, month, month_name,
			day_of_month, day_of_week, day_name, week_of_year, is_weekend)
			VALUES (:date_key, :full_date, :year, :quarter, :month, :month_name,
			:day_of_month, :day_of_week, :day_name, :week_of_year, :is_weekend)`, marts.Dates); err != nil {
			return err
		}
		return insertNamed(ctx, tx, `INSERT INTO fct_messages (message_id, channel_key, date_key, message_text,
			message_length, view_count, forward_count, has_image)
			VALUES (:message_id, :channel_key, :date_key, :message_text,
			:message_length, :view_count, :forward_count, :has_image)`, marts.Facts)
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "warehouse", "replace marts", "rolled back", err)
	}
	return nil
}

// ReplaceDetectionMart swaps fct_image_detections alone, creating it on
// first use.
func (s *Store) ReplaceDetectionMart(ctx context.Context, facts []DetectionFact) error {
	rows := detectionFactRows(facts)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		return replaceDetectionFacts(ctx, tx, rows)
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "warehouse", "replace detection mart", "rolled back", err)
	}
	return nil
}

// HasDetectionMart reports whether fct_image_detections has been created.
func (s *Store) HasDetectionMart(ctx context.Context) (bool, error) {
	return s.TableExists(ctx, detectionMartTable)
}

func insertNamed[T any](ctx context.Context, tx *sqlx.Tx, query string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// ListChannels returns dim_channels ordered by key.
func (s *Store) ListChannels(ctx context.Context) ([]ChannelRow, error) {
	var rows []ChannelRow
	if err := s.selectWithRetry(ctx, &rows, `SELECT channel_key, channel_name, channel_type, total_posts, avg_views
		FROM dim_channels ORDER BY channel_key`); err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "list channels", "", err)
	}
	return rows, nil
}

// ListDates returns dim_dates ordered by key.
func (s *Store) ListDates(ctx context.Context) ([]DateRow, error) {
	var rows []DateRow
	if err := s.selectWithRetry(ctx, &rows, `SELECT date_key, full_date, year, quarter, month, month_name,
		day_of_month, day_of_week, day_name, week_of_year, is_weekend
		FROM dim_dates ORDER BY date_key`); err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "list dates", "", err)
	}
	return rows, nil
}

// ListFacts returns fct_messages ordered by (channel_key, message_id).
func (s *Store) ListFacts(ctx context.Context) ([]MessageFact, error) {
	var rows []MessageFact
	if err := s.selectWithRetry(ctx, &rows, `SELECT message_id, channel_key, date_key, message_text,
		message_length, view_count, forward_count, has_image
		FROM fct_messages ORDER BY channel_key, message_id`); err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "list facts", "", err)
	}
	return rows, nil
}

// ListDetectionFacts returns fct_image_detections ordered by
// (channel_key, message_id, image_path). A missing mart yields ErrNotFound.
func (s *Store) ListDetectionFacts(ctx context.Context) ([]DetectionFact, error) {
	exists, err := s.HasDetectionMart(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, services.Wrap(services.ErrNotFound, "warehouse", "list detection facts", detectionMartTable+" has not been built", nil)
	}
	var rows []detectionFactRow
	if err := s.selectWithRetry(ctx, &rows, `SELECT message_id, channel_key, image_path, detected_class,
		confidence_score, image_category, detection_count, detected_at
		FROM fct_image_detections ORDER BY channel_key, message_id, image_path`); err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "list detection facts", "", err)
	}
	out := make([]DetectionFact, 0, len(rows))
	for _, r := range rows {
		out = append(out, DetectionFact{
			MessageID:       r.MessageID,
			ChannelKey:      r.ChannelKey,
			ImagePath:       r.ImagePath,
			DetectedClass:   r.DetectedClass,
			ConfidenceScore: r.ConfidenceScore,
			ImageCategory:   r.ImageCategory,
			DetectionCount:  r.DetectionCount,
			DetectedAt:      r.DetectedAt.Time,
		})
	}
	return out, nil
}
