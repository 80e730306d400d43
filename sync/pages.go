package sync

import "context"

// ReportPages is the lazy, pull-driven sequence of pages for one report
// query over one date chunk. It is finite and cannot be restarted once
// consumed: pagination advances by PageSize offsets until the requested
// rows meet or exceed the API-reported row count.
type ReportPages struct {
	runner  ReportRunner
	report  Report
	chunk   DateChunk
	offset  int64
	hasMore bool
}

// GetReport returns the page sequence for one report and date chunk.
// No requests are issued until Next is called.
func GetReport(runner ReportRunner, report Report, chunk DateChunk) *ReportPages {
	return &ReportPages{
		runner:  runner,
		report:  report,
		chunk:   chunk,
		hasMore: true,
	}
}

// Next fetches the next page, returning nil once all rows for the chunk
// have been retrieved.
func (p *ReportPages) Next(ctx context.Context) (*ReportPage, error) {
	if !p.hasMore {
		return nil, nil
	}
	page, err := p.runner.RunReport(ctx, p.report, p.chunk.StartDate, p.chunk.EndDate, p.offset)
	if err != nil {
		return nil, err
	}
	p.hasMore = page.RowCount > PageSize+p.offset
	p.offset += PageSize
	return page, nil
}
