package event

import (
	"encoding/json"
	"time"

	"swapstream/internal/model"
)

// Emitter receives change notifications from the engines.
type Emitter interface {
	Emit(record model.EventRecord)
}

// Buffer collects notifications for one transaction. The host drains it on
// commit and discards it on revert, so indexers never observe rolled-back
// records.
type Buffer struct {
	nextSeq uint64
	records []model.EventRecord
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Emit stamps the record with the next sequence number and buffers it.
func (b *Buffer) Emit(record model.EventRecord) {
	record.Seq = b.nextSeq
	b.nextSeq++
	if record.EmittedAt == "" {
		record.EmittedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	b.records = append(b.records, record)
}

// Drain returns the buffered records and clears the buffer, keeping the
// sequence counter.
func (b *Buffer) Drain() []model.EventRecord {
	out := b.records
	b.records = nil
	return out
}

// Discard drops buffered records and rewinds the sequence counter to before
// the discarded batch.
func (b *Buffer) Discard() {
	b.nextSeq -= uint64(len(b.records))
	b.records = nil
}

// Nop is an Emitter that drops every record.
type Nop struct{}

func (Nop) Emit(model.EventRecord) {}

// MustMarshal encodes a notification payload, panicking on marshal failure.
// Payload structs are plain string/uint fields, so failure is a programming
// error.
func MustMarshal(payload any) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return data
}
