package enrichment

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"medwarehouse/internal/fileutil"
	"medwarehouse/internal/services"
	"medwarehouse/internal/warehouse"
)

// CSVHeader is the detection export column order.
var CSVHeader = []string{
	"message_id",
	"channel_name",
	"image_path",
	"detected_class",
	"confidence_score",
	"image_category",
	"detection_count",
	"detected_at",
}

// WriteCSV atomically replaces path with a header row followed by rows.
func WriteCSV(path string, rows []warehouse.Detection) error {
	err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(CSVHeader); err != nil {
			return err
		}
		for _, row := range rows {
			record := []string{
				strconv.FormatInt(row.MessageID, 10),
				row.ChannelName,
				row.ImagePath,
				row.DetectedClass,
				strconv.FormatFloat(row.ConfidenceScore, 'f', -1, 64),
				row.ImageCategory,
				strconv.Itoa(row.DetectionCount),
				row.DetectedAt.UTC().Format(time.RFC3339Nano),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "enriching", "write csv", path, err)
	}
	return nil
}
