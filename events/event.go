// Package events turns cluster membership changes into messages and
// publishes them to external sinks.
package events

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Type is the kind of membership change
type Type string

const (
	Activated   Type = "activated"
	Deactivated Type = "deactivated"
)

// Event is one membership change of one database. ID is unique per
// emitting instance and increases with Time.
type Event struct {
	ID       uint64    `msgpack:"id" json:"id"`
	Type     Type      `msgpack:"type" json:"type"`
	Cluster  string    `msgpack:"cluster" json:"cluster"`
	Database string    `msgpack:"database" json:"database"`
	Time     time.Time `msgpack:"time" json:"time"`
}

// Key is the partition key used by sinks. Events for the same database
// land on the same partition.
func (e Event) Key() string {
	return e.Cluster + "/" + e.Database
}

func (e Event) Encode() ([]byte, error) {
	b, err := msgpack.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return b, nil
}

func Decode(b []byte) (Event, error) {
	var e Event
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return e, nil
}
