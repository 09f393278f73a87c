package enrichment

import (
	"cmp"
	"slices"

	"medwarehouse/internal/detection"
)

// TopObjectLimit bounds Summary.TopObjects.
const TopObjectLimit = 5

// ObjectCount is how often a class was the top detection.
type ObjectCount struct {
	Class string `json:"class"`
	Count int    `json:"count"`
}

// Summary reports one enrichment run.
type Summary struct {
	Candidates      int                       `json:"candidates"`
	AlreadyEnriched int                       `json:"already_enriched"`
	Processed       int                       `json:"processed"`
	Failed          int                       `json:"failed"`
	Inserted        int                       `json:"inserted"`
	Skipped         int                       `json:"skipped"`
	ByCategory      map[string]int            `json:"by_category"`
	ByChannel       map[string]map[string]int `json:"by_channel"`
	TopObjects      []ObjectCount             `json:"top_objects"`
	DetectionFacts  int                       `json:"detection_facts"`
	OutputPath      string                    `json:"output_path"`

	classes map[string]int
}

func newSummary() Summary {
	return Summary{
		ByCategory: make(map[string]int),
		ByChannel:  make(map[string]map[string]int),
		classes:    make(map[string]int),
	}
}

func (s *Summary) add(rec detection.Record) {
	s.Processed++
	s.ByCategory[string(rec.ImageCategory)]++
	perChannel, ok := s.ByChannel[rec.ChannelName]
	if !ok {
		perChannel = make(map[string]int)
		s.ByChannel[rec.ChannelName] = perChannel
	}
	perChannel[string(rec.ImageCategory)]++
	s.classes[rec.DetectedClass]++
}

// finish derives TopObjects: most frequent first, ties by class name.
func (s *Summary) finish() {
	s.TopObjects = s.TopObjects[:0]
	for class, count := range s.classes {
		s.TopObjects = append(s.TopObjects, ObjectCount{Class: class, Count: count})
	}
	slices.SortFunc(s.TopObjects, func(a, b ObjectCount) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.Class, b.Class))
	})
	if len(s.TopObjects) > TopObjectLimit {
		s.TopObjects = s.TopObjects[:TopObjectLimit]
	}
}

// CategoryShare returns the percentage of processed images in category.
func (s Summary) CategoryShare(category detection.Category) float64 {
	if s.Processed == 0 {
		return 0
	}
	return 100 * float64(s.ByCategory[string(category)]) / float64(s.Processed)
}
