package dimensional

import (
	"cmp"
	"slices"
	"unicode/utf8"

	"medwarehouse/internal/warehouse"
)

func channelKeys(channels []warehouse.ChannelRow) map[string]int {
	keys := make(map[string]int, len(channels))
	for _, ch := range channels {
		keys[ch.ChannelName] = ch.ChannelKey
	}
	return keys
}

// BuildFacts joins messages to channel keys. Messages whose channel has no
// dimension row are dropped and counted.
func BuildFacts(messages []warehouse.Message, channels []warehouse.ChannelRow) ([]warehouse.MessageFact, int) {
	keys := channelKeys(channels)
	facts := make([]warehouse.MessageFact, 0, len(messages))
	dropped := 0
	for _, msg := range messages {
		key, ok := keys[msg.ChannelName]
		if !ok {
			dropped++
			continue
		}
		facts = append(facts, warehouse.MessageFact{
			MessageID:     msg.MessageID,
			ChannelKey:    key,
			DateKey:       DateKey(msg.MessageDate),
			MessageText:   msg.MessageText,
			MessageLength: utf8.RuneCountInString(msg.MessageText),
			ViewCount:     msg.ViewCount,
			ForwardCount:  msg.ForwardCount,
			HasImage:      msg.HasMedia,
		})
	}
	slices.SortFunc(facts, func(a, b warehouse.MessageFact) int {
		return cmp.Or(cmp.Compare(a.ChannelKey, b.ChannelKey), cmp.Compare(a.MessageID, b.MessageID))
	})
	return facts, dropped
}

// BuildDetectionFacts joins raw detections to channel keys the same way.
func BuildDetectionFacts(detections []warehouse.Detection, channels []warehouse.ChannelRow) ([]warehouse.DetectionFact, int) {
	keys := channelKeys(channels)
	facts := make([]warehouse.DetectionFact, 0, len(detections))
	dropped := 0
	for _, det := range detections {
		key, ok := keys[det.ChannelName]
		if !ok {
			dropped++
			continue
		}
		facts = append(facts, warehouse.DetectionFact{
			MessageID:       det.MessageID,
			ChannelKey:      key,
			ImagePath:       det.ImagePath,
			DetectedClass:   det.DetectedClass,
			ConfidenceScore: det.ConfidenceScore,
			ImageCategory:   det.ImageCategory,
			DetectionCount:  det.DetectionCount,
			DetectedAt:      det.DetectedAt,
		})
	}
	slices.SortFunc(facts, func(a, b warehouse.DetectionFact) int {
		return cmp.Or(
			cmp.Compare(a.ChannelKey, b.ChannelKey),
			cmp.Compare(a.MessageID, b.MessageID),
			cmp.Compare(a.ImagePath, b.ImagePath),
		)
	})
	return facts, dropped
}
