package models

// BatchStatus is the lifecycle state of an inventory batch.
//
//	N (normal)  - all mutations allowed
//	F (frozen)  - blocks new reservations and consumption; release allowed
//	E (expired) - terminal; read-only
type BatchStatus string

const (
	BatchStatusNormal  BatchStatus = "N"
	BatchStatusFrozen  BatchStatus = "F"
	BatchStatusExpired BatchStatus = "E"
)

func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusNormal, BatchStatusFrozen, BatchStatusExpired:
		return true
	}
	return false
}

// DisplayStrategy selects how a SKU's spec-value names are read for display:
// live joins against the catalog (always current) or the denormalized
// snapshot captured at SKU creation (fast, possibly stale).
type DisplayStrategy string

const (
	DisplayStrategyLive     DisplayStrategy = "LIVE"
	DisplayStrategySnapshot DisplayStrategy = "SNAPSHOT"
)

func (s DisplayStrategy) Valid() bool {
	return s == DisplayStrategyLive || s == DisplayStrategySnapshot
}

// history action types
const (
	ActionTypeCreate = "*CREATE*"
	ActionTypeUpdate = "*UPDATE*"
	ActionTypeDelete = "*DELETE*"
	ActionTypeRename = "*RENAME*"
)
