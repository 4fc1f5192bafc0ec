package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// Domain failures below are recoverable conditions surfaced to the calling
// layer. Each carries the ids/fields needed to render an actionable message;
// none should be treated as fatal to the process.

// InvalidCombinationError reports a SKU combination referencing an unknown
// key/value, a value under the wrong key, or a missing required key.
type InvalidCombinationError struct {
	ProductId int
	KeyId     int
	ValueId   int
	Reason    string
}

func (e *InvalidCombinationError) Error() string {
	return fmt.Sprintf("invalid combination for product %d (key=%d value=%d): %s",
		e.ProductId, e.KeyId, e.ValueId, e.Reason)
}

// DuplicateCombinationError reports that a SKU with the same signature
// already exists within the product.
type DuplicateCombinationError struct {
	ProductId int
	Signature string
}

func (e *DuplicateCombinationError) Error() string {
	return fmt.Sprintf("duplicate combination for product %d: signature %q already registered",
		e.ProductId, e.Signature)
}

// InsufficientAvailableError reports a reservation exceeding the batch's
// available quantity.
type InsufficientAvailableError struct {
	BatchId   int
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientAvailableError) Error() string {
	return fmt.Sprintf("insufficient available quantity on batch %d: requested %s, available %s",
		e.BatchId, e.Requested, e.Available)
}

// InsufficientReservedError reports a consumption exceeding the batch's
// reserved quantity (consumption must first be reserved).
type InsufficientReservedError struct {
	BatchId   int
	Requested decimal.Decimal
	Reserved  decimal.Decimal
}

func (e *InsufficientReservedError) Error() string {
	return fmt.Sprintf("insufficient reserved quantity on batch %d: requested %s, reserved %s",
		e.BatchId, e.Requested, e.Reserved)
}

// OverReleaseError reports a release that would drive the batch's reserved
// quantity below zero.
type OverReleaseError struct {
	BatchId   int
	Requested decimal.Decimal
	Reserved  decimal.Decimal
}

func (e *OverReleaseError) Error() string {
	return fmt.Sprintf("over-release on batch %d: requested %s, reserved %s",
		e.BatchId, e.Requested, e.Reserved)
}

// BatchFrozenError reports a blocked mutation against a frozen batch.
type BatchFrozenError struct {
	BatchId   int
	Operation string
}

func (e *BatchFrozenError) Error() string {
	return fmt.Sprintf("batch %d is frozen: %s not allowed", e.BatchId, e.Operation)
}

// BatchExpiredError reports a mutation attempt against an expired (terminal)
// batch.
type BatchExpiredError struct {
	BatchId   int
	Operation string
}

func (e *BatchExpiredError) Error() string {
	return fmt.Sprintf("batch %d is expired: %s not allowed", e.BatchId, e.Operation)
}

// UnknownEntityError reports an id or name that does not resolve.
type UnknownEntityError struct {
	Entity string
	Id     int
	Name   string
}

func (e *UnknownEntityError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unknown %s %q", e.Entity, e.Name)
	}
	return fmt.Sprintf("unknown %s %d", e.Entity, e.Id)
}

// ConflictError reports a concurrent-update race that persisted past the
// bounded internal retries. It is distinguishable from domain-rule
// violations: the caller may simply retry the operation.
type ConflictError struct {
	Entity   string
	Id       int
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent update conflict on %s %d after %d attempts",
		e.Entity, e.Id, e.Attempts)
}
