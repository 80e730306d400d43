package sync

import (
	"strings"

	"github.com/iancoleman/strcase"
)

// Catalog is the set of syncable report streams produced by discovery.
// This package only consumes it; building one is the discovery
// collaborator's job.
type Catalog struct {
	Streams []CatalogEntry `json:"streams"`
}

// CatalogEntry describes one syncable report stream: its schema, key
// properties and per-field metadata.
type CatalogEntry struct {
	Stream        string                 `json:"stream"`
	TapStreamID   string                 `json:"tap_stream_id"`
	Schema        map[string]interface{} `json:"schema"`
	KeyProperties []string               `json:"key_properties"`
	Metadata      []Metadata             `json:"metadata"`
}

// Metadata is one Singer-style metadata entry. A root entry has an empty
// breadcrumb; field entries use ("properties", <field_name>).
type Metadata struct {
	Breadcrumb []string               `json:"breadcrumb"`
	Metadata   map[string]interface{} `json:"metadata"`
}

func (m Metadata) getString(key string) string {
	if v, exists := m.Metadata[key]; exists {
		if s, isString := v.(string); isString {
			return s
		}
	}
	return ""
}

// getBool returns the boolean metadata value for key and whether the key
// was present at all. Selection logic needs the tri-state.
func (m Metadata) getBool(key string) (bool, bool) {
	if v, exists := m.Metadata[key]; exists {
		if b, isBool := v.(bool); isBool {
			return b, true
		}
	}
	return false, false
}

// rootMetadata returns the entry with the empty breadcrumb.
func (e CatalogEntry) rootMetadata() (Metadata, bool) {
	for _, m := range e.Metadata {
		if len(m.Breadcrumb) == 0 {
			return m, true
		}
	}
	return Metadata{}, false
}

// IsSelected reports whether the stream is selected for sync.
func (e CatalogEntry) IsSelected() bool {
	root, exists := e.rootMetadata()
	if !exists {
		return false
	}
	selected, _ := root.getBool("selected")
	return selected
}

// SelectedFields resolves the dimension and metric field names to request
// for a stream, in metadata order. A field is included if it is marked
// automatic, or explicitly selected, or selected by default without an
// explicit deselection. Unsupported fields are skipped.
func (e CatalogEntry) SelectedFields() (dimensions []string, metrics []string) {
	for _, m := range e.Metadata {
		if len(m.Breadcrumb) != 2 || m.Breadcrumb[0] != "properties" {
			continue
		}
		if m.getString("inclusion") == "unsupported" {
			continue
		}
		fieldName := m.Breadcrumb[1]
		selected, selectedSet := m.getBool("selected")
		selectedByDefault, _ := m.getBool("selected-by-default")
		include := m.getString("inclusion") == "automatic" ||
			selected ||
			(selectedByDefault && !selectedSet)
		if !include {
			continue
		}
		switch m.getString("behavior") {
		case "METRIC":
			metrics = append(metrics, fieldName)
		case "DIMENSION":
			dimensions = append(dimensions, fieldName)
		}
	}
	return dimensions, metrics
}

// GetSelectedStreams returns the catalog entries selected for sync, in
// catalog order.
func (c Catalog) GetSelectedStreams() []CatalogEntry {
	var selected []CatalogEntry
	for _, entry := range c.Streams {
		if entry.IsSelected() {
			selected = append(selected, entry)
		}
	}
	return selected
}

// ToSnakeCase canonicalizes a GA4 API name. Custom event fields arrive as
// "customEvent:pageLocation" and become "custom_event_page_location".
// Custom event names may themselves contain capitals:
// https://support.google.com/analytics/answer/10085872#event-name-rules
func ToSnakeCase(apiName string) string {
	return strcase.ToSnake(strings.ReplaceAll(apiName, ":", "_"))
}
