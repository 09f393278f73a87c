package lake

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"medwarehouse/internal/fileutil"
	"medwarehouse/internal/services"
)

// WriteChannel replaces the channel file for a partition with messages,
// sorted by message id. It returns the written path.
func (l Layout) WriteChannel(partition, channel string, messages []Message) (string, error) {
	if _, err := ParsePartition(partition); err != nil {
		return "", services.Wrap(services.ErrValidation, "lake", "write", "", err)
	}
	sorted := append([]Message(nil), messages...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MessageID < sorted[j].MessageID })

	path := l.ChannelFile(partition, channel)
	err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(sorted)
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "lake", "write", path, err)
	}
	return path, nil
}

// ListPartition returns the channel files of a partition in file-name order.
// A missing partition is ErrNotFound.
func (l Layout) ListPartition(partition string) ([]string, error) {
	if _, err := ParsePartition(partition); err != nil {
		return nil, services.Wrap(services.ErrValidation, "lake", "list", "", err)
	}
	dir := l.PartitionDir(partition)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "lake", "list", "partition "+partition+" has no directory", err)
		}
		return nil, services.Wrap(services.ErrTransient, "lake", "list", dir, err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile decodes and validates one channel file. Decode and invariant
// failures are ErrValidation; I/O failures are ErrTransient.
func ReadFile(path string) ([]Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		marker := services.ErrTransient
		if errors.Is(err, fs.ErrNotExist) {
			marker = services.ErrNotFound
		}
		return nil, services.Wrap(marker, "lake", "read", path, err)
	}
	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, services.Wrap(services.ErrValidation, "lake", "decode", filepath.Base(path), err)
	}
	for i, msg := range messages {
		if err := msg.Validate(); err != nil {
			return nil, services.Wrap(services.ErrValidation, "lake", "validate", fmt.Sprintf("%s record %d", filepath.Base(path), i), err)
		}
	}
	return messages, nil
}
