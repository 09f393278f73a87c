package warehouse

import (
	"context"

	"github.com/jmoiron/sqlx"

	"medwarehouse/internal/services"
)

type detectionRow struct {
	MessageID       int64   `db:"message_id"`
	ChannelName     string  `db:"channel_name"`
	ImagePath       string  `db:"image_path"`
	DetectedClass   string  `db:"detected_class"`
	ConfidenceScore float64 `db:"confidence_score"`
	ImageCategory   string  `db:"image_category"`
	DetectionCount  int     `db:"detection_count"`
	DetectedAt      sqlTime `db:"detected_at"`
}

const insertDetectionSQL = `INSERT INTO raw_image_detections (
	message_id, channel_name, image_path, detected_class, confidence_score,
	image_category, detection_count, detected_at
) VALUES (
	:message_id, :channel_name, :image_path, :detected_class, :confidence_score,
	:image_category, :detection_count, :detected_at
) ON CONFLICT (message_id, image_path) DO NOTHING`

// InsertDetections stores detection records, skipping images already enriched.
func (s *Store) InsertDetections(ctx context.Context, detections []Detection) (InsertStats, error) {
	if len(detections) == 0 {
		return InsertStats{}, nil
	}
	var stats InsertStats
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		stats = InsertStats{}
		stmt, err := tx.PrepareNamedContext(ctx, insertDetectionSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, det := range detections {
			res, err := stmt.ExecContext(ctx, detectionRow{
				MessageID:       det.MessageID,
				ChannelName:     det.ChannelName,
				ImagePath:       det.ImagePath,
				DetectedClass:   det.DetectedClass,
				ConfidenceScore: det.ConfidenceScore,
				ImageCategory:   det.ImageCategory,
				DetectionCount:  det.DetectionCount,
				DetectedAt:      sqlTime{det.DetectedAt},
			})
			if err != nil {
				return err
			}
			if affected, err := res.RowsAffected(); err != nil {
				return err
			} else if affected > 0 {
				stats.Inserted++
			} else {
				stats.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return InsertStats{}, services.Wrap(services.ErrTransient, "warehouse", "insert detections", "batch rolled back", err)
	}
	return stats, nil
}

// ListDetections returns every raw detection ordered by channel, message and path.
func (s *Store) ListDetections(ctx context.Context) ([]Detection, error) {
	var rows []detectionRow
	err := s.selectWithRetry(ctx, &rows, `SELECT message_id, channel_name, image_path, detected_class,
		confidence_score, image_category, detection_count, detected_at
		FROM raw_image_detections ORDER BY channel_name, message_id, image_path`)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "list detections", "", err)
	}
	out := make([]Detection, 0, len(rows))
	for _, r := range rows {
		out = append(out, Detection{
			MessageID:       r.MessageID,
			ChannelName:     r.ChannelName,
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

// DetectedImagePaths returns the set of image paths that already have a
// detection record, keyed by path.
func (s *Store) DetectedImagePaths(ctx context.Context) (map[string]struct{}, error) {
	var paths []string
	if err := s.selectWithRetry(ctx, &paths, "SELECT image_path FROM raw_image_detections"); err != nil {
		return nil, services.Wrap(services.ErrTransient, "warehouse", "list detected paths", "", err)
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set, nil
}
