package services

import (
	"sort"
	"strconv"
	"time"

	"github.com/fugboizz/hanet-attendance-api/internal/models"
)

// Aggregator folds raw check-in events into one earliest-check-in /
// latest-check-out summary per (personID, date). It is pure: input order
// never affects output content.
type Aggregator struct {
	loc *time.Location
}

// NewAggregator returns an aggregator rendering HH:MM:SS clock strings in
// the given location. A nil location falls back to UTC.
func NewAggregator(loc *time.Location) Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return Aggregator{loc: loc}
}

// Reduce deduplicates events by (personID, checkinTime), drops events
// without a personID, personName or timestamp, then groups the rest by
// (personID, date): the group's minimum timestamp becomes the check-in, the
// maximum the check-out, and descriptive fields come from the first event
// seen for the group. Output is sorted by check-in time, ties by personID.
func (a Aggregator) Reduce(events []models.CheckinEvent) []models.PersonDaySummary {
	type groupKey struct {
		personID string
		date     string
	}

	seen := make(map[string]struct{}, len(events))
	groups := make(map[groupKey]*models.PersonDaySummary)

	for _, e := range events {
		if e.PersonID == "" || e.PersonName == "" || e.CheckinTime == 0 {
			continue
		}

		dedupeKey := e.PersonID + "_" + strconv.FormatInt(e.CheckinTime, 10)
		if _, dup := seen[dedupeKey]; dup {
			continue
		}
		seen[dedupeKey] = struct{}{}

		k := groupKey{personID: e.PersonID, date: e.Date}
		s, ok := groups[k]
		if !ok {
			title := e.Title
			if title == "" {
				title = models.TitleGuest
			}
			groups[k] = &models.PersonDaySummary{
				PersonName:            e.PersonName,
				PersonID:              e.PersonID,
				AliasID:               e.AliasID,
				PlaceID:               e.PlaceID,
				Title:                 title,
				Type:                  e.Type,
				DeviceID:              e.DeviceID,
				DeviceName:            e.DeviceName,
				Date:                  e.Date,
				CheckinTime:           e.CheckinTime,
				CheckoutTime:          e.CheckinTime,
				FormattedCheckinTime:  a.clock(e.CheckinTime),
				FormattedCheckoutTime: a.clock(e.CheckinTime),
			}
			continue
		}

		// Later events only move the extremes, never the descriptive fields.
		if e.CheckinTime < s.CheckinTime {
			s.CheckinTime = e.CheckinTime
			s.FormattedCheckinTime = a.clock(e.CheckinTime)
		}
		if e.CheckinTime > s.CheckoutTime {
			s.CheckoutTime = e.CheckinTime
			s.FormattedCheckoutTime = a.clock(e.CheckinTime)
		}
	}

	out := make([]models.PersonDaySummary, 0, len(groups))
	for _, s := range groups {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CheckinTime != out[j].CheckinTime {
			return out[i].CheckinTime < out[j].CheckinTime
		}
		return out[i].PersonID < out[j].PersonID
	})
	return out
}

// ReduceRange filters events to checkinTime within [from, to] before
// reducing. Used after lookback-widened fetches to trim the result back to
// the range the caller asked for.
func (a Aggregator) ReduceRange(events []models.CheckinEvent, from, to int64) []models.PersonDaySummary {
	inRange := make([]models.CheckinEvent, 0, len(events))
	for _, e := range events {
		if e.CheckinTime >= from && e.CheckinTime <= to {
			inRange = append(inRange, e)
		}
	}
	return a.Reduce(inRange)
}

func (a Aggregator) clock(ts int64) string {
	return time.UnixMilli(ts).In(a.loc).Format("15:04:05")
}
