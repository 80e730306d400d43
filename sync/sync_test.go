package sync

import (
	"context"
	"strings"
	"testing"
	"time"
)

// memoryWriter captures emitted messages, snapshotting state at write time.
type memoryWriter struct {
	messages []Message
}

func copyState(state *State) *State {
	snapshot := &State{}
	if state.CurrentlySyncing != nil {
		current := *state.CurrentlySyncing
		snapshot.CurrentlySyncing = &current
	}
	for streamID, properties := range state.Bookmarks {
		for propertyID, bookmark := range properties {
			snapshot.SetBookmark(streamID, propertyID, bookmark.LastReportDate)
		}
	}
	return snapshot
}

func (w *memoryWriter) WriteSchema(stream string, schema map[string]interface{}, keyProperties []string) error {
	w.messages = append(w.messages, Message{Type: "SCHEMA", Stream: stream, Schema: schema, KeyProperties: keyProperties})
	return nil
}

func (w *memoryWriter) WriteRecord(stream string, record Record, timeExtracted time.Time) error {
	w.messages = append(w.messages, Message{
		Type:          "RECORD",
		Stream:        stream,
		Record:        record,
		TimeExtracted: timeExtracted.UTC().Format(TimeExtractedFormat),
	})
	return nil
}

func (w *memoryWriter) WriteState(state *State) error {
	w.messages = append(w.messages, Message{Type: "STATE", Value: copyState(state)})
	return nil
}

func (w *memoryWriter) byType(messageType string) []Message {
	var result []Message
	for _, m := range w.messages {
		if m.Type == messageType {
			result = append(result, m)
		}
	}
	return result
}

// e2eRunner returns one row per requested page, dated at the start of the
// requested range.
type e2eRunner struct {
	ranges []DateChunk
}

func (f *e2eRunner) RunReport(_ context.Context, report Report, rangeStart string, rangeEnd string, _ int64) (*ReportPage, error) {
	f.ranges = append(f.ranges, DateChunk{StartDate: rangeStart, EndDate: rangeEnd})
	return &ReportPage{
		DimensionHeaders: report.Dimensions,
		MetricHeaders:    report.Metrics,
		RowCount:         1,
		Rows: []Row{{
			DimensionValues: []string{strings.ReplaceAll(rangeStart, "-", ""), "NZ"},
			MetricValues:    []string{"42"},
		}},
		QuotaTokensConsumed: 1,
	}, nil
}

func testSyncCatalog() Catalog {
	entry := testCatalogEntry(true,
		fieldMetadata("date", map[string]interface{}{
			"inclusion": "automatic",
			"behavior":  "DIMENSION",
		}),
		fieldMetadata("country", map[string]interface{}{
			"inclusion": "available",
			"selected":  true,
			"behavior":  "DIMENSION",
		}),
		fieldMetadata("totalUsers", map[string]interface{}{
			"inclusion": "available",
			"selected":  true,
			"behavior":  "METRIC",
		}),
	)
	return Catalog{Streams: []CatalogEntry{entry}}
}

func newTestSyncer(runner ReportRunner, writer MessageWriter, config Config) *Syncer {
	syncer := NewSyncer(runner, writer, config, NewState())
	syncer.Now = func() time.Time {
		return testNow
	}
	return syncer
}

func TestSyncSingleDaySpan(t *testing.T) {
	runner := &e2eRunner{}
	writer := &memoryWriter{}
	config := Config{
		StartDate:  "2022-09-05",
		EndDate:    "2022-09-05",
		PropertyID: "123456789",
		AccountID:  "1234",
	}
	syncer := newTestSyncer(runner, writer, config)

	if err := syncer.Sync(context.Background(), testSyncCatalog()); err != nil {
		t.Fatal(err)
	}

	expectedTypes := []string{"STATE", "SCHEMA", "RECORD", "STATE", "STATE", "STATE"}
	if len(writer.messages) != len(expectedTypes) {
		t.Fatalf("Expected %d messages but have: %+v", len(expectedTypes), writer.messages)
	}
	for i, expected := range expectedTypes {
		if writer.messages[i].Type != expected {
			t.Errorf("Expected message %d to be %s but have: %s", i, expected, writer.messages[i].Type)
		}
	}

	states := writer.byType("STATE")
	first := states[0].Value
	if first.CurrentlySyncing == nil || *first.CurrentlySyncing != "my_stream_id" {
		t.Errorf("Expected my_stream_id currently syncing but have: %v", first.CurrentlySyncing)
	}
	bookmark, exists := states[1].Value.GetBookmark("my_stream_id", "123456789")
	if !exists || bookmark.LastReportDate != "2022-09-05" {
		t.Errorf("Expected bookmark 2022-09-05 but have: %+v", bookmark)
	}
	final := states[len(states)-1].Value
	if final.CurrentlySyncing != nil {
		t.Errorf("Expected currently syncing cleared but have: %v", *final.CurrentlySyncing)
	}

	records := writer.byType("RECORD")
	if len(records) != 1 {
		t.Fatalf("Expected one record but have: %d", len(records))
	}
	record := records[0].Record
	if record["date"] != "2022-09-05T00:00:00.000000Z" {
		t.Errorf("Expected normalized date but have: %v", record["date"])
	}
	if record["account_id"] != "1234" {
		t.Errorf("Expected account_id 1234 but have: %v", record["account_id"])
	}
	hash, isString := record["_sdc_record_hash"].(string)
	if !isString || len(hash) != 64 {
		t.Errorf("Expected a record hash but have: %v", record["_sdc_record_hash"])
	}
}

func TestSyncIsIdempotentAcrossRuns(t *testing.T) {
	config := Config{
		StartDate:  "2022-09-05",
		EndDate:    "2022-09-05",
		PropertyID: "123456789",
	}

	firstWriter := &memoryWriter{}
	if err := newTestSyncer(&e2eRunner{}, firstWriter, config).Sync(context.Background(), testSyncCatalog()); err != nil {
		t.Fatal(err)
	}
	secondWriter := &memoryWriter{}
	if err := newTestSyncer(&e2eRunner{}, secondWriter, config).Sync(context.Background(), testSyncCatalog()); err != nil {
		t.Fatal(err)
	}

	firstHash := firstWriter.byType("RECORD")[0].Record["_sdc_record_hash"]
	secondHash := secondWriter.byType("RECORD")[0].Record["_sdc_record_hash"]
	if firstHash != secondHash {
		t.Errorf("Expected identical hashes across replays but have: %v / %v", firstHash, secondHash)
	}
}

func TestSyncTwoDaySpanIsOneChunk(t *testing.T) {
	runner := &e2eRunner{}
	writer := &memoryWriter{}
	config := Config{
		StartDate:  "2022-09-05",
		EndDate:    "2022-09-06",
		PropertyID: "123456789",
	}
	if err := newTestSyncer(runner, writer, config).Sync(context.Background(), testSyncCatalog()); err != nil {
		t.Fatal(err)
	}

	if len(runner.ranges) != 1 {
		t.Fatalf("Expected one report query but have: %v", runner.ranges)
	}
	expected := DateChunk{StartDate: "2022-09-05", EndDate: "2022-09-06"}
	if runner.ranges[0] != expected {
		t.Errorf("Expected range %v but have: %v", expected, runner.ranges[0])
	}
}

func TestSyncBookmarksEachChunk(t *testing.T) {
	runner := &e2eRunner{}
	writer := &memoryWriter{}
	config := Config{
		StartDate:  "2022-01-01",
		EndDate:    "2022-01-10",
		PropertyID: "123456789",
	}
	if err := newTestSyncer(runner, writer, config).Sync(context.Background(), testSyncCatalog()); err != nil {
		t.Fatal(err)
	}

	expectedRanges := []DateChunk{
		{StartDate: "2022-01-01", EndDate: "2022-01-07"},
		{StartDate: "2022-01-08", EndDate: "2022-01-10"},
	}
	if len(runner.ranges) != len(expectedRanges) {
		t.Fatalf("Expected ranges %v but have: %v", expectedRanges, runner.ranges)
	}
	for i := range expectedRanges {
		if runner.ranges[i] != expectedRanges[i] {
			t.Errorf("Expected range %d to be %v but have: %v", i, expectedRanges[i], runner.ranges[i])
		}
	}

	var bookmarks []string
	for _, state := range writer.byType("STATE") {
		if bookmark, exists := state.Value.GetBookmark("my_stream_id", "123456789"); exists {
			if len(bookmarks) == 0 || bookmarks[len(bookmarks)-1] != bookmark.LastReportDate {
				bookmarks = append(bookmarks, bookmark.LastReportDate)
			}
		}
	}
	expectedBookmarks := []string{"2022-01-07", "2022-01-10"}
	if len(bookmarks) != len(expectedBookmarks) {
		t.Fatalf("Expected bookmarks %v but have: %v", expectedBookmarks, bookmarks)
	}
	for i := range expectedBookmarks {
		if bookmarks[i] != expectedBookmarks[i] {
			t.Errorf("Expected bookmark %d to be %s but have: %s", i, expectedBookmarks[i], bookmarks[i])
		}
	}
}

func TestSyncResumesFromBookmark(t *testing.T) {
	runner := &e2eRunner{}
	writer := &memoryWriter{}
	config := Config{
		StartDate:  "2022-01-01",
		EndDate:    "2022-09-09",
		PropertyID: "123456789",
	}
	state := NewState()
	state.SetBookmark("my_stream_id", "123456789", "2022-09-07")

	syncer := NewSyncer(runner, writer, config, state)
	syncer.Now = func() time.Time {
		return testNow
	}
	if err := syncer.Sync(context.Background(), testSyncCatalog()); err != nil {
		t.Fatal(err)
	}

	// The bookmark is inside the conversion window, so the sync resumes
	// from the window's start, not the bookmark.
	expectedStart := midnight(testNow).AddDate(0, 0, -ConversionWindow).Format(DateFormat)
	if len(runner.ranges) == 0 || runner.ranges[0].StartDate != expectedStart {
		t.Errorf("Expected first range to start at %s but have: %v", expectedStart, runner.ranges)
	}
}

func TestSyncSkipsDeselectedStreams(t *testing.T) {
	runner := &e2eRunner{}
	writer := &memoryWriter{}
	config := Config{
		StartDate:  "2022-09-05",
		EndDate:    "2022-09-05",
		PropertyID: "123456789",
	}
	catalog := Catalog{Streams: []CatalogEntry{testCatalogEntry(false)}}
	if err := newTestSyncer(runner, writer, config).Sync(context.Background(), catalog); err != nil {
		t.Fatal(err)
	}

	if len(runner.ranges) != 0 {
		t.Errorf("Expected no report queries but have: %v", runner.ranges)
	}
	// Only the final cleared state snapshot is written
	if len(writer.messages) != 1 || writer.messages[0].Type != "STATE" {
		t.Errorf("Expected a single final STATE message but have: %+v", writer.messages)
	}
}
