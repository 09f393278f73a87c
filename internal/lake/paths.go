package lake

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"medwarehouse/internal/textutil"
)

// PartitionLayout is the date format of partition directory names.
const PartitionLayout = "2006-01-02"

// Partition formats t (in UTC) as a partition name.
func Partition(t time.Time) string {
	return t.UTC().Format(PartitionLayout)
}

// ParsePartition validates a YYYY-MM-DD partition name.
func ParsePartition(value string) (time.Time, error) {
	t, err := time.Parse(PartitionLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("partition %q: expected YYYY-MM-DD", value)
	}
	return t, nil
}

// Layout resolves lake paths beneath a data directory.
type Layout struct {
	DataDir string
}

// MessagesRoot is raw/telegram_messages.
func (l Layout) MessagesRoot() string {
	return filepath.Join(l.DataDir, "raw", "telegram_messages")
}

// PartitionDir is the directory holding one day's channel files.
func (l Layout) PartitionDir(partition string) string {
	return filepath.Join(l.MessagesRoot(), partition)
}

// ChannelFile is the JSON file for one channel within a partition.
func (l Layout) ChannelFile(partition, channel string) string {
	return filepath.Join(l.PartitionDir(partition), textutil.SanitizeToken(channel)+".json")
}

// ImagesRoot is raw/images.
func (l Layout) ImagesRoot() string {
	return filepath.Join(l.DataDir, "raw", "images")
}

// RelImagePath is the data-dir-relative image path stored in messages.
func (l Layout) RelImagePath(channel string, messageID int64) string {
	return filepath.ToSlash(filepath.Join("raw", "images", textutil.SanitizeToken(channel), strconv.FormatInt(messageID, 10)+".jpg"))
}

// Abs resolves a data-dir-relative path. Absolute paths are returned unchanged.
func (l Layout) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(l.DataDir, filepath.FromSlash(rel))
}

// Rel converts an absolute path under the data directory to the relative,
// slash-separated form. Paths outside the data directory are returned as-is.
func (l Layout) Rel(path string) string {
	rel, err := filepath.Rel(l.DataDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
