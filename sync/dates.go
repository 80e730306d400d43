package sync

import (
	"fmt"
	"time"
)

const (
	// DateFormat is the calendar date layout used for config values,
	// report date ranges and bookmarks.
	DateFormat = "2006-01-02"

	// ConversionWindow is the trailing number of days during which GA4
	// attribution data may still change. Resumed syncs never start later
	// than now minus this window.
	ConversionWindow = 90
)

// DateChunk is one inclusive calendar date sub-range submitted as a single
// report query.
type DateChunk struct {
	StartDate string
	EndDate   string
}

// ReportDates produces the ordered sequence of DateChunk covering
// [start, end] in spans of requestRange days. Chunks are contiguous,
// non-overlapping and cover the range exactly once; the last chunk is
// truncated to the end date. The sequence is empty when start is after end.
type ReportDates struct {
	rangeStart   time.Time
	endDate      time.Time
	requestRange int
}

// GenerateReportDates returns the chunk sequence for [startDate, endDate].
// Request ranges below one day are clamped to one so the sequence always
// advances.
func GenerateReportDates(startDate time.Time, endDate time.Time, requestRange int) *ReportDates {
	if requestRange < 1 {
		requestRange = 1
	}
	return &ReportDates{
		rangeStart:   startDate,
		endDate:      endDate,
		requestRange: requestRange,
	}
}

// Next returns the next chunk, or false once the range is exhausted.
func (r *ReportDates) Next() (DateChunk, bool) {
	if r.rangeStart.After(r.endDate) {
		return DateChunk{}, false
	}
	// Subtract 1 from the request range because report date ranges are inclusive
	rangeEnd := r.rangeStart.AddDate(0, 0, r.requestRange-1)
	chunkEnd := rangeEnd
	if r.endDate.Before(rangeEnd) {
		chunkEnd = r.endDate
	}
	chunk := DateChunk{
		StartDate: r.rangeStart.Format(DateFormat),
		EndDate:   chunkEnd.Format(DateFormat),
	}
	r.rangeStart = rangeEnd.AddDate(0, 0, 1)
	return chunk, true
}

// midnight truncates a time to the start of its UTC day.
func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetReportStartDate returns the correct report start date for a stream.
//
// Cases:
//
//	start date: bookmark is empty, OR the conversion date is earlier than
//	            the start date AND the bookmark is later than the start date.
//	bookmark:   bookmark is earlier than the conversion date (this can
//	            happen if the sync was paused for a while).
//	conversion: the conversion date is after the start date AND earlier
//	            than the bookmark.
func GetReportStartDate(config Config, propertyID string, state *State, streamID string, now time.Time) (time.Time, error) {
	startDate, err := time.Parse(DateFormat, config.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse start date %q %w", config.StartDate, err)
	}

	bookmark, exists := state.GetBookmark(streamID, propertyID)
	if !exists || bookmark.LastReportDate == "" {
		return startDate, nil
	}

	bookmarkDate, err := time.Parse(DateFormat, bookmark.LastReportDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse bookmark %q for stream %s %w", bookmark.LastReportDate, streamID, err)
	}

	conversionDay := midnight(now).AddDate(0, 0, -ConversionWindow)

	resumeDate := startDate
	if conversionDay.After(resumeDate) {
		resumeDate = conversionDay
	}
	if bookmarkDate.Before(resumeDate) {
		resumeDate = bookmarkDate
	}
	return resumeDate, nil
}

// GetEndDate returns the end date for the reporting sync. Under normal
// operation this is the date portion of UTC now, overridable by the
// endDate config value.
func GetEndDate(config Config, now time.Time) (time.Time, error) {
	if config.EndDate != "" {
		endDate, err := time.Parse(DateFormat, config.EndDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse end date %q %w", config.EndDate, err)
		}
		return endDate, nil
	}
	return midnight(now), nil
}
