package storage

import "swapstream/internal/model"

// Storage defines a sink for ledger event records.
type Storage interface {
	PutEventBatch(events []model.EventRecord) error
}
