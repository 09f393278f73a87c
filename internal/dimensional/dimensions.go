package dimensional

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"medwarehouse/internal/warehouse"
)

const (
	TypeCosmetics      = "Cosmetics"
	TypePharmaceutical = "Pharmaceutical"
	TypeMedical        = "Medical"
)

// ChannelType classifies a channel by name. "cosmetic" wins over "pharma".
func ChannelType(name string) string {
	// Casers carry state and must not be shared across goroutines.
	folded := cases.Fold().String(name)
	switch {
	case strings.Contains(folded, "cosmetic"):
		return TypeCosmetics
	case strings.Contains(folded, "pharma"):
		return TypePharmaceutical
	default:
		return TypeMedical
	}
}

// BuildChannels assigns keys by ascending channel name starting at 1.
func BuildChannels(messages []warehouse.Message) []warehouse.ChannelRow {
	type agg struct {
		posts int
		views int64
	}
	byName := make(map[string]*agg)
	for _, msg := range messages {
		a, ok := byName[msg.ChannelName]
		if !ok {
			a = &agg{}
			byName[msg.ChannelName] = a
		}
		a.posts++
		a.views += int64(msg.ViewCount)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)

	rows := make([]warehouse.ChannelRow, 0, len(names))
	for i, name := range names {
		a := byName[name]
		avg := 0.0
		if a.posts > 0 {
			avg = float64(a.views) / float64(a.posts)
		}
		rows = append(rows, warehouse.ChannelRow{
			ChannelKey:  i + 1,
			ChannelName: name,
			ChannelType: ChannelType(name),
			TotalPosts:  a.posts,
			AvgViews:    avg,
		})
	}
	return rows
}

// DateKey formats a UTC day as YYYYMMDD.
func DateKey(t time.Time) int {
	t = t.UTC()
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// BuildDates produces one row per distinct UTC message date.
func BuildDates(messages []warehouse.Message) []warehouse.DateRow {
	seen := make(map[int]time.Time)
	for _, msg := range messages {
		day := msg.MessageDate.UTC()
		seen[DateKey(day)] = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	}
	keys := make([]int, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	rows := make([]warehouse.DateRow, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, dateRow(key, seen[key]))
	}
	return rows
}

func dateRow(key int, day time.Time) warehouse.DateRow {
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	_, week := day.ISOWeek()
	return warehouse.DateRow{
		DateKey:    key,
		FullDate:   day.Format("2006-01-02"),
		Year:       day.Year(),
		Quarter:    (int(day.Month())-1)/3 + 1,
		Month:      int(day.Month()),
		MonthName:  day.Month().String(),
		DayOfMonth: day.Day(),
		DayOfWeek:  weekday,
		DayName:    day.Weekday().String(),
		WeekOfYear: week,
		IsWeekend:  weekday >= 6,
	}
}
