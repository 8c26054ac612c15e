package codec

import (
	"encoding/json"

	"github.com/parquedb/parquedb/pkg/document"
	"github.com/parquedb/parquedb/pkg/event"
)

// EventRow is the on-disk Parquet row shape for a segment file. Doc
// payloads are carried as JSON-encoded strings: the event log itself is
// never shredded, only entity snapshot files are (internal/variant).
type EventRow struct {
	ID       string `parquet:"id"`
	TS       int64  `parquet:"ts"`
	Op       string `parquet:"op"`
	Target   string `parquet:"target"`
	Actor    string `parquet:"actor,optional"`
	Before   string `parquet:"before,optional"`
	After    string `parquet:"after,optional"`
	Metadata string `parquet:"metadata,optional"`
}

// ToRow converts a domain event into its Parquet row representation.
func ToRow(e *event.Event) (EventRow, error) {
	row := EventRow{
		ID:     e.ID,
		TS:     e.TS,
		Op:     string(e.Op),
		Target: e.Target,
	}
	if e.Actor != nil {
		row.Actor = e.Actor.String()
	}
	if e.Before != nil {
		b, err := json.Marshal(e.Before)
		if err != nil {
			return EventRow{}, err
		}
		row.Before = string(b)
	}
	if e.After != nil {
		b, err := json.Marshal(e.After)
		if err != nil {
			return EventRow{}, err
		}
		row.After = string(b)
	}
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return EventRow{}, err
		}
		row.Metadata = string(b)
	}
	return row, nil
}

// FromRow reconstructs a domain event from its Parquet row.
func FromRow(row EventRow) (*event.Event, error) {
	e := &event.Event{
		ID:     row.ID,
		TS:     row.TS,
		Op:     event.Op(row.Op),
		Target: row.Target,
	}
	if row.Actor != "" {
		actor, err := document.ParseEntityId(row.Actor)
		if err != nil {
			return nil, err
		}
		e.Actor = &actor
	}
	if row.Before != "" {
		var before document.Doc
		if err := json.Unmarshal([]byte(row.Before), &before); err != nil {
			return nil, err
		}
		e.Before = before
	}
	if row.After != "" {
		var after document.Doc
		if err := json.Unmarshal([]byte(row.After), &after); err != nil {
			return nil, err
		}
		e.After = after
	}
	if row.Metadata != "" {
		var metadata document.Doc
		if err := json.Unmarshal([]byte(row.Metadata), &metadata); err != nil {
			return nil, err
		}
		e.Metadata = metadata
	}
	return e, nil
}
