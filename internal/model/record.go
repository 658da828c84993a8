package model

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Notification names emitted by the engines.
const (
	EventPoolCreated      = "pool_created"
	EventPoolUpdated      = "pool_updated"
	EventPriceUpdate      = "price_update"
	EventLiquidityAdded   = "liquidity_added"
	EventLiquidityRemoved = "liquidity_removed"
	EventSwap             = "swap"
	EventMultiHopSwap     = "multi_hop_swap"
	EventFlashLoan        = "flash_loan"
	EventStreamCreated    = "stream_created"
	EventStreamRefueled   = "stream_refueled"
	EventStreamWithdrawn  = "stream_withdrawn"
	EventStreamRefunded   = "stream_refunded"
	EventStreamUpdated    = "stream_updated"
)

// Entity kinds carried by notification records.
const (
	EntityPool   = "pool"
	EntityStream = "stream"
)

// EventRecord is the normalized representation of a change notification for storage.
type EventRecord struct {
	Seq       uint64          `json:"seq"`
	Block     uint64          `json:"block"`
	Name      string          `json:"name"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Parties   []string        `json:"parties,omitempty"`
	Decoded   json.RawMessage `json:"decoded"`
	EmittedAt string          `json:"emitted_at"`
}

// MarshalJSON ensures EventRecord is encoded with stable field names.
func (er EventRecord) MarshalJSON() ([]byte, error) {
	type Alias EventRecord
	return json.Marshal(Alias(er))
}

// UnmarshalJSON decodes an EventRecord from JSON.
func (er *EventRecord) UnmarshalJSON(data []byte) error {
	type Alias EventRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*er = EventRecord(a)
	return nil
}

// FormatAmount renders a big integer as a decimal string for JSON payloads.
func FormatAmount(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

// ParseAmount parses a decimal string into a big integer. Empty means zero.
func ParseAmount(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}
