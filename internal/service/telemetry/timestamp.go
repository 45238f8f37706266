package telemetry

import (
	"fmt"
	"strconv"
	"time"

	"zone-detection-console/internal/models"
)

const timestampLayout = "20060102150405"

// FormatTimestamp форматирует время как YYYYMMDDHHMMSSmmm (UTC)
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	return t.Format(timestampLayout) + fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
}

// ParseTimestamp разбирает YYYYMMDDHHMMSSmmm
func ParseTimestamp(s string) (time.Time, error) {
	if len(s) != len(timestampLayout)+3 {
		return time.Time{}, fmt.Errorf("неверная длина метки времени %q", s)
	}
	t, err := time.ParseInLocation(timestampLayout, s[:len(timestampLayout)], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("неверная метка времени %q: %w", s, err)
	}
	ms, err := strconv.Atoi(s[len(timestampLayout):])
	if err != nil {
		return time.Time{}, fmt.Errorf("неверные миллисекунды в %q: %w", s, err)
	}
	return t.Add(time.Duration(ms) * time.Millisecond), nil
}

// CountObjectsInZone считает детекции с zone_flag == true
func CountObjectsInZone(objects []models.DetectedObject) int {
	count := 0
	for _, obj := range objects {
		if obj.ZoneFlag {
			count++
		}
	}
	return count
}

// ComputeAverage - среднее число детекций, для пустого списка 0
func ComputeAverage(data []models.StatsData) float64 {
	if len(data) == 0 {
		return 0
	}
	total := 0.0
	for _, entry := range data {
		total += entry.NumberOfDetections
	}
	return total / float64(len(data))
}
