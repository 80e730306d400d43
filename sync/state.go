package sync

// Bookmark records the end date of the most recently fully-processed chunk
// for one (stream, property) pair.
type Bookmark struct {
	LastReportDate string `json:"last_report_date"`
}

// State is the process-wide sync state: every stream's bookmarks plus the
// currently syncing stream marker. It is owned exclusively by the Syncer
// and persisted through the MessageWriter after each mutation.
type State struct {
	CurrentlySyncing *string                        `json:"currently_syncing"`
	Bookmarks        map[string]map[string]Bookmark `json:"bookmarks,omitempty"`
}

func NewState() *State {
	return &State{}
}

// GetBookmark returns the bookmark for a stream/property pair, reporting
// whether one exists.
func (s *State) GetBookmark(streamID string, propertyID string) (Bookmark, bool) {
	properties, exists := s.Bookmarks[streamID]
	if !exists {
		return Bookmark{}, false
	}
	bookmark, exists := properties[propertyID]
	return bookmark, exists
}

// SetBookmark overwrites the bookmark for a stream/property pair. Each
// snapshot fully supersedes the prior one.
func (s *State) SetBookmark(streamID string, propertyID string, lastReportDate string) {
	if s.Bookmarks == nil {
		s.Bookmarks = make(map[string]map[string]Bookmark)
	}
	if s.Bookmarks[streamID] == nil {
		s.Bookmarks[streamID] = make(map[string]Bookmark)
	}
	s.Bookmarks[streamID][propertyID] = Bookmark{LastReportDate: lastReportDate}
}

// SetCurrentlySyncing marks the stream a sync pass is working on. An empty
// stream ID clears the marker.
func (s *State) SetCurrentlySyncing(streamID string) {
	if streamID == "" {
		s.CurrentlySyncing = nil
		return
	}
	s.CurrentlySyncing = &streamID
}
