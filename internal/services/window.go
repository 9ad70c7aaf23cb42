package services

import (
	"github.com/fugboizz/hanet-attendance-api/internal/models"
)

const millisPerDay = int64(24 * 60 * 60 * 1000)

// WindowPlanner splits a requested [from, to) range into bounded sub-ranges
// so no single upstream query spans more than a few days of events.
type WindowPlanner struct {
	// LookbackDays widens the fetch window backward to compensate for
	// upstream day-boundary ambiguity. The aggregator deduplicates and
	// filters the result back to the requested range, so a non-zero value
	// never changes what callers see. 0 disables the extra chunk.
	LookbackDays int
}

// PlanChunks returns a deterministic, ordered, contiguous and gapless chunk
// sequence whose union is exactly [from, to). Larger total spans get larger
// chunks to bound the number of upstream calls. A lookback chunk, when
// enabled, is prepended strictly before from and never overlaps the rest.
func (p WindowPlanner) PlanChunks(from, to int64) []models.Chunk {
	if to <= from {
		return nil
	}

	span, kind := chunkSpan(to - from)

	var chunks []models.Chunk
	if p.LookbackDays > 0 {
		chunks = append(chunks, models.Chunk{
			Start: from - int64(p.LookbackDays)*millisPerDay,
			End:   from,
			Kind:  "lookback",
		})
	}

	for start := from; start < to; {
		end := start + span
		if end > to {
			end = to
		}
		chunks = append(chunks, models.Chunk{Start: start, End: end, Kind: kind})
		start = end
	}
	return chunks
}

// chunkSpan picks the per-chunk span for a total range. The kind labels are
// diagnostics only.
func chunkSpan(total int64) (int64, string) {
	switch {
	case total <= 7*millisPerDay:
		return 3 * millisPerDay, "standard"
	case total <= 90*millisPerDay:
		return 7 * millisPerDay, "week"
	default:
		return 30 * millisPerDay, "month"
	}
}
