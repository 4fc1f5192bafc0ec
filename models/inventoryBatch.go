package models

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"bitbucket.org/mmdatafocus/catalog_backend/config"
	"bitbucket.org/mmdatafocus/catalog_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryBatch is a dated production lot of one SKU, the unit of quantity
// tracking. Quantities satisfy, after every committed mutation:
//
//	available = current - reserved
//	0 <= reserved <= current
//
// Version is the optimistic-concurrency guard: every quantity/status update
// is a compare-and-swap on (id, version), so per-batch mutations are
// linearizable without long-lived locks.
type InventoryBatch struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id" binding:"required"`
	SkuId           int             `gorm:"index:idx_inventory_batches_sku_month,priority:1;not null" json:"sku_id" binding:"required"`
	ProductId       int             `gorm:"index;not null" json:"product_id"`
	BatchNumber     string          `gorm:"size:100" json:"batch_number"`
	ProductionDate  time.Time       `gorm:"not null" json:"production_date"`
	ProductionMonth string          `gorm:"size:7;not null;index:idx_inventory_batches_sku_month,priority:2" json:"production_month"`
	ExpiryDate      *time.Time      `json:"expiry_date"`
	CurrentQty      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"current_qty"`
	ReservedQty     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"reserved_qty"`
	AvailableQty    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"available_qty"`
	Status          BatchStatus     `gorm:"size:1;not null;default:'N'" json:"status"`
	Version         int             `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b InventoryBatch) GetBusinessId() string {
	return b.BusinessId
}

type NewInventoryBatch struct {
	SkuId          int             `json:"sku_id" binding:"required"`
	BatchNumber    string          `json:"batch_number"`
	ProductionDate time.Time       `json:"production_date" binding:"required"`
	Qty            decimal.Decimal `json:"qty"`
	ExpiryDate     *time.Time      `json:"expiry_date"`
}

// ReceiveBatch records a new production lot: current = qty, reserved = 0.
func ReceiveBatch(ctx context.Context, input *NewInventoryBatch) (*InventoryBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if !input.Qty.IsPositive() {
		return nil, errors.New("qty must be positive")
	}
	if input.ExpiryDate != nil && !input.ExpiryDate.After(input.ProductionDate) {
		return nil, errors.New("expiry date must be after production date")
	}

	sku, err := utils.FetchModel[SKU](ctx, businessId, input.SkuId)
	if err != nil {
		return nil, &utils.UnknownEntityError{Entity: "sku", Id: input.SkuId}
	}

	batchNumber := input.BatchNumber
	if batchNumber == "" {
		batchNumber = uuid.NewString()
	}

	batch := InventoryBatch{
		BusinessId:      businessId,
		SkuId:           sku.ID,
		ProductId:       sku.ProductId,
		BatchNumber:     batchNumber,
		ProductionDate:  input.ProductionDate,
		ProductionMonth: utils.MonthOf(input.ProductionDate),
		ExpiryDate:      input.ExpiryDate,
		CurrentQty:      input.Qty,
		ReservedQty:     decimal.Zero,
		AvailableQty:    input.Qty,
		Status:          BatchStatusNormal,
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&batch).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := invalidateMonthlySummary(tx.WithContext(ctx), &batch); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), ctx, ActionTypeCreate, batch.ID, "inventory_batches", nil, batch, "batch received"); err != nil {
		tx.Rollback()
		return nil, err
	}
	return &batch, tx.Commit().Error
}

const batchMutationRetries = 5

// mutateBatch applies a quantity/status change under optimistic concurrency:
// read, validate via apply, CAS write on (id, version). A lost race re-reads
// and retries with jittered backoff up to batchMutationRetries times, then
// surfaces a ConflictError. Domain-rule violations from apply abort
// immediately with no retry and no partial effect.
func mutateBatch(ctx context.Context, batchId int, operation string, apply func(b *InventoryBatch) error) (*InventoryBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()

	for attempt := 1; attempt <= batchMutationRetries; attempt++ {
		batch, err := utils.FetchModel[InventoryBatch](ctx, businessId, batchId)
		if err != nil {
			return nil, &utils.UnknownEntityError{Entity: "inventory batch", Id: batchId}
		}
		before := *batch

		if err := apply(batch); err != nil {
			return nil, err
		}
		batch.AvailableQty = batch.CurrentQty.Sub(batch.ReservedQty)

		if batch.CurrentQty.IsNegative() || batch.ReservedQty.IsNegative() || batch.ReservedQty.GreaterThan(batch.CurrentQty) {
			// apply funcs below keep this unreachable; guard stays so no code
			// path can commit a torn state
			return nil, fmt.Errorf("batch %d: quantity invariant violated by %s", batchId, operation)
		}

		tx := db.Begin()
		result := tx.WithContext(ctx).Model(&InventoryBatch{}).
			Where("id = ? AND version = ?", batch.ID, before.Version).
			Updates(map[string]interface{}{
				"CurrentQty":   batch.CurrentQty,
				"ReservedQty":  batch.ReservedQty,
				"AvailableQty": batch.AvailableQty,
				"Status":       batch.Status,
				"Version":      before.Version + 1,
			})
		if result.Error != nil {
			tx.Rollback()
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			// lost the race; back off and re-read
			tx.Rollback()
			time.Sleep(time.Duration(attempt)*10*time.Millisecond + time.Duration(rand.Intn(10))*time.Millisecond)
			continue
		}

		if err := invalidateMonthlySummary(tx.WithContext(ctx), batch); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := createHistory(tx.WithContext(ctx), ctx, ActionTypeUpdate, batch.ID, "inventory_batches", before, batch, operation); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.Commit().Error; err != nil {
			return nil, err
		}
		batch.Version = before.Version + 1
		return batch, nil
	}

	err := &utils.ConflictError{Entity: "inventory batch", Id: batchId, Attempts: batchMutationRetries}
	config.LogError(config.GetLogger(), "models", "mutateBatch", operation, batchId, err)
	return nil, err
}

// ReserveBatch holds amount against the batch's available quantity.
func ReserveBatch(ctx context.Context, batchId int, amount decimal.Decimal) (*InventoryBatch, error) {
	if !amount.IsPositive() {
		return nil, errors.New("amount must be positive")
	}
	return mutateBatch(ctx, batchId, "reserve", func(b *InventoryBatch) error {
		switch b.Status {
		case BatchStatusExpired:
			return &utils.BatchExpiredError{BatchId: b.ID, Operation: "reserve"}
		case BatchStatusFrozen:
			return &utils.BatchFrozenError{BatchId: b.ID, Operation: "reserve"}
		}
		if amount.GreaterThan(b.AvailableQty) {
			return &utils.InsufficientAvailableError{BatchId: b.ID, Requested: amount, Available: b.AvailableQty}
		}
		b.ReservedQty = b.ReservedQty.Add(amount)
		return nil
	})
}

// ReleaseBatch returns amount from the reservation. Allowed on frozen
// batches: releasing a hold never moves stock outward.
func ReleaseBatch(ctx context.Context, batchId int, amount decimal.Decimal) (*InventoryBatch, error) {
	if !amount.IsPositive() {
		return nil, errors.New("amount must be positive")
	}
	return mutateBatch(ctx, batchId, "release", func(b *InventoryBatch) error {
		if b.Status == BatchStatusExpired {
			return &utils.BatchExpiredError{BatchId: b.ID, Operation: "release"}
		}
		if amount.GreaterThan(b.ReservedQty) {
			return &utils.OverReleaseError{BatchId: b.ID, Requested: amount, Reserved: b.ReservedQty}
		}
		b.ReservedQty = b.ReservedQty.Sub(amount)
		return nil
	})
}

// ConsumeBatch ships previously reserved stock: consumption must first be
// reserved, so amount is bounded by the reserved quantity.
func ConsumeBatch(ctx context.Context, batchId int, amount decimal.Decimal) (*InventoryBatch, error) {
	if !amount.IsPositive() {
		return nil, errors.New("amount must be positive")
	}
	return mutateBatch(ctx, batchId, "consume", func(b *InventoryBatch) error {
		switch b.Status {
		case BatchStatusExpired:
			return &utils.BatchExpiredError{BatchId: b.ID, Operation: "consume"}
		case BatchStatusFrozen:
			return &utils.BatchFrozenError{BatchId: b.ID, Operation: "consume"}
		}
		if amount.GreaterThan(b.ReservedQty) {
			return &utils.InsufficientReservedError{BatchId: b.ID, Requested: amount, Reserved: b.ReservedQty}
		}
		b.CurrentQty = b.CurrentQty.Sub(amount)
		b.ReservedQty = b.ReservedQty.Sub(amount)
		return nil
	})
}

// AdjustBatchStatus moves a batch through its lifecycle. Expired is terminal.
func AdjustBatchStatus(ctx context.Context, batchId int, status BatchStatus) (*InventoryBatch, error) {
	if !status.Valid() {
		return nil, errors.New("invalid batch status")
	}
	return mutateBatch(ctx, batchId, "status change", func(b *InventoryBatch) error {
		if b.Status == BatchStatusExpired {
			return &utils.BatchExpiredError{BatchId: b.ID, Operation: "status change"}
		}
		b.Status = status
		return nil
	})
}

func GetInventoryBatch(ctx context.Context, id int) (*InventoryBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	batch, err := utils.FetchModel[InventoryBatch](ctx, businessId, id)
	if err != nil {
		return nil, &utils.UnknownEntityError{Entity: "inventory batch", Id: id}
	}
	return batch, nil
}

func GetBatchesBySKU(ctx context.Context, skuId int, month *string) ([]*InventoryBatch, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ? AND sku_id = ?", businessId, skuId)
	if month != nil && *month != "" {
		if _, err := utils.ParseMonth(*month); err != nil {
			return nil, err
		}
		dbCtx = dbCtx.Where("production_month = ?", *month)
	}
	var results []*InventoryBatch
	if err := dbCtx.Order("production_date, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
