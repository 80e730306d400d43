package sync

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// TimeExtractedFormat is the timestamp layout for the time_extracted field
// on record messages.
const TimeExtractedFormat = "2006-01-02T15:04:05.000000Z"

// MessageWriter is the outbound sink for one sync pass: a schema
// declaration per stream, ordered record events, and state snapshots.
// Durable storage and transport of what is written is outside this package.
type MessageWriter interface {
	WriteSchema(stream string, schema map[string]interface{}, keyProperties []string) error
	WriteRecord(stream string, record Record, timeExtracted time.Time) error
	WriteState(state *State) error
}

// Message is one newline-delimited tagged output message.
type Message struct {
	Type          string                 `json:"type"`
	Stream        string                 `json:"stream,omitempty"`
	Schema        map[string]interface{} `json:"schema,omitempty"`
	KeyProperties []string               `json:"key_properties,omitempty"`
	Record        Record                 `json:"record,omitempty"`
	TimeExtracted string                 `json:"time_extracted,omitempty"`
	Value         *State                 `json:"value,omitempty"`
}

// JSONMessageWriter streams messages to Out as newline-delimited JSON.
type JSONMessageWriter struct {
	Out io.Writer
}

func (w JSONMessageWriter) write(message Message) error {
	encoded, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode %s message %w", message.Type, err)
	}
	encoded = append(encoded, '\n')
	if _, err = w.Out.Write(encoded); err != nil {
		return fmt.Errorf("failed to write %s message %w", message.Type, err)
	}
	return nil
}

func (w JSONMessageWriter) WriteSchema(stream string, schema map[string]interface{}, keyProperties []string) error {
	return w.write(Message{
		Type:          "SCHEMA",
		Stream:        stream,
		Schema:        schema,
		KeyProperties: keyProperties,
	})
}

func (w JSONMessageWriter) WriteRecord(stream string, record Record, timeExtracted time.Time) error {
	return w.write(Message{
		Type:          "RECORD",
		Stream:        stream,
		Record:        record,
		TimeExtracted: timeExtracted.UTC().Format(TimeExtractedFormat),
	})
}

func (w JSONMessageWriter) WriteState(state *State) error {
	return w.write(Message{
		Type:  "STATE",
		Value: state,
	})
}
