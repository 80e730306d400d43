package sync

import (
	"context"
	"log"
	"time"
)

// Syncer drives one sync pass over the selected streams of a catalog,
// sequentially and one stream at a time. It owns the State exclusively and
// persists it through the Writer after every mutation.
type Syncer struct {
	Client ReportRunner
	Writer MessageWriter
	Config Config
	State  *State

	// Now is indirected so extraction timestamps and date resolution are
	// testable. Nil means time.Now.
	Now func() time.Time
}

func NewSyncer(client ReportRunner, writer MessageWriter, config Config, state *State) *Syncer {
	return &Syncer{
		Client: client,
		Writer: writer,
		Config: config,
		State:  state,
		Now:    time.Now,
	}
}

func (s *Syncer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Sync runs every selected stream in catalog order. Each stream is marked
// currently syncing before any of its records are emitted; after all
// streams complete the marker is cleared and the final state persisted.
// A failed stream surfaces immediately, leaving the last committed
// bookmark intact so the run is safely repeatable from that point.
func (s *Syncer) Sync(ctx context.Context, catalog Catalog) error {
	for _, stream := range catalog.GetSelectedStreams() {
		s.State.SetCurrentlySyncing(stream.TapStreamID)
		if err := s.Writer.WriteState(s.State); err != nil {
			return err
		}

		dimensions, metrics := stream.SelectedFields()

		endDate, err := GetEndDate(s.Config, s.now())
		if err != nil {
			return err
		}

		if err := s.Writer.WriteSchema(stream.Stream, stream.Schema, stream.KeyProperties); err != nil {
			return err
		}

		report := Report{
			Name:       stream.Stream,
			ID:         stream.TapStreamID,
			PropertyID: s.Config.PropertyID,
			AccountID:  s.Config.AccountID,
			Dimensions: dimensions,
			Metrics:    metrics,
		}

		startDate, err := GetReportStartDate(s.Config, report.PropertyID, s.State, report.ID, s.now())
		if err != nil {
			return err
		}

		if err := s.syncReport(ctx, report, startDate, endDate, s.Config.RequestRangeOrDefault()); err != nil {
			return err
		}
		if err := s.Writer.WriteState(s.State); err != nil {
			return err
		}
	}

	s.State.SetCurrentlySyncing("")
	return s.Writer.WriteState(s.State)
}

// syncReport extracts one report across its full date span, a chunk at a
// time, bookmarking each chunk's end date once every row of the chunk has
// been emitted. Rows are pulled page by page; a chunk's rows are never
// buffered in full.
func (s *Syncer) syncReport(ctx context.Context, report Report, startDate time.Time, endDate time.Time, requestRange int) error {
	log.Printf("Syncing %s for property_id %s", report.Name, report.PropertyID)

	dates := GenerateReportDates(startDate, endDate, requestRange)
	for {
		chunk, more := dates.Next()
		if !more {
			break
		}

		pages := GetReport(s.Client, report, chunk)
		for {
			page, err := pages.Next(ctx)
			if err != nil {
				return err
			}
			if page == nil {
				break
			}

			counter := 0
			for _, row := range page.Rows {
				timeExtracted := s.now()
				record, err := RowToRecord(report, row, page.DimensionHeaders, page.MetricHeaders)
				if err != nil {
					return err
				}
				err = s.Writer.WriteRecord(report.Name, TransformDatetimes(report.Name, record), timeExtracted)
				if err != nil {
					return err
				}
				counter++
			}
			log.Printf("Wrote %d records for report: %s", counter, report.Name)
		}

		s.State.SetBookmark(report.ID, report.PropertyID, chunk.EndDate)
		if err := s.Writer.WriteState(s.State); err != nil {
			return err
		}
	}

	log.Printf("Done syncing %s for property_id %s", report.Name, report.PropertyID)
	return nil
}
