package scraper

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math/rand/v2"
	"time"

	"medwarehouse/internal/fileutil"
	"medwarehouse/internal/lake"
	"medwarehouse/internal/services"
)

var syntheticProducts = []string{
	"Paracetamol 500mg", "Amoxicillin 250mg", "Vitamin C 1000mg",
	"Insulin Glargine", "Aspirin 75mg", "Metformin 500mg",
	"Losartan 50mg", "Atorvastatin 20mg", "Salbutamol Inhaler",
	"Cetirizine 10mg", "Ibuprofen 400mg", "Omeprazole 20mg",
}

const (
	syntheticMinPosts = 15
	syntheticMaxPosts = 25
	syntheticDays     = 30
)

// Synthetic generates plausible pharmacy posts. Output is a pure function of
// the seed, the channel and the clock.
type Synthetic struct {
	seed int64
	now  func() time.Time
}

// NewSynthetic builds a generator. A zero seed draws one from the clock.
func NewSynthetic(seed int64) *Synthetic {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Synthetic{seed: seed, now: time.Now}
}

// WithClock pins the generator's notion of now.
func (s *Synthetic) WithClock(now func() time.Time) *Synthetic {
	s.now = now
	return s
}

func (s *Synthetic) Name() string { return "synthetic" }

func (s *Synthetic) Open(ctx context.Context, fn func(context.Context, Fetcher) error) error {
	return fn(ctx, s)
}

func (s *Synthetic) Fetch(ctx context.Context, req FetchRequest) ([]lake.Message, error) {
	h := fnv.New64a()
	_, _ = io.WriteString(h, req.Channel)
	rng := rand.New(rand.NewPCG(uint64(s.seed), h.Sum64()))

	count := req.Limit
	if count <= 0 {
		count = syntheticMinPosts + rng.IntN(syntheticMaxPosts-syntheticMinPosts+1)
	}
	now := s.now().UTC()
	scraped := lake.NewTimestamp(now)
	used := make(map[int64]struct{}, count)
	messages := make([]lake.Message, 0, count)
	for len(messages) < count {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := int64(1000 + rng.IntN(9000))
		if _, dup := used[id]; dup {
			if len(used) >= 9000 {
				break
			}
			continue
		}
		used[id] = struct{}{}

		age := time.Duration(rng.IntN(syntheticDays+1))*24*time.Hour + time.Duration(rng.IntN(24*60))*time.Minute
		msg := lake.Message{
			MessageID:   id,
			ChannelName: req.Channel,
			MessageDate: lake.NewTimestamp(now.Add(-age)),
			MessageText: fmt.Sprintf("%s available. Price: %d ETB. Contact for details.",
				syntheticProducts[rng.IntN(len(syntheticProducts))], 50+rng.IntN(451)),
			Views:     100 + rng.IntN(4901),
			Forwards:  rng.IntN(101),
			HasMedia:  rng.IntN(3) == 0,
			ScrapedAt: &scraped,
		}
		if msg.HasMedia {
			rel := req.Layout.RelImagePath(req.Channel, id)
			msg.ImagePath = &rel
			if req.DownloadImages {
				shade := uint8(rng.IntN(256))
				if err := writePlaceholder(req.Layout.Abs(rel), shade); err != nil {
					return nil, services.Wrap(services.ErrTransient, "scraping", "write image", rel, err)
				}
			}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func writePlaceholder(path string, shade uint8) error {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetGray(x, y, color.Gray{Y: shade})
		}
	}
	return fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 60})
	})
}
