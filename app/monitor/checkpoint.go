package monitor

import (
	"sort"
	"time"
)

var DefaultCheckpointHours = []int{7, 11, 15, 19}

// NextCheckpoint returns the first checkpoint strictly after now, in loc. After the last checkpoint
// of a day it rolls over to the first checkpoint of the next day.
func NextCheckpoint(now time.Time, hours []int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if len(hours) == 0 {
		hours = DefaultCheckpointHours
	}

	sorted := append([]int(nil), hours...)
	sort.Ints(sorted)

	local := now.In(loc)
	y, m, d := local.Date()
	for _, h := range sorted {
		candidate := time.Date(y, m, d, h, 0, 0, 0, loc)
		if candidate.After(local) {
			return candidate
		}
	}

	return time.Date(y, m, d+1, sorted[0], 0, 0, 0, loc)
}
