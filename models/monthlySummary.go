package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/catalog_backend/config"
	"bitbucket.org/mmdatafocus/catalog_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MonthlySummary is the derived aggregate of one SKU's batches for one
// production month. It is a rebuildable cache: the ledger is the source of
// truth and every row can be reconstructed by re-scanning batches, so losing
// a summary is a performance regression, never data loss.
//
// Ledger mutations mark the affected row stale instead of recomputing it
// inline; recomputation happens on the next read or in the background sweep.
// Recomputing is idempotent and last-writer-wins, so concurrent recomputes of
// the same (sku, month) need no coordination.
type MonthlySummary struct {
	SkuId      int    `gorm:"primaryKey" json:"sku_id"`
	Month      string `gorm:"primaryKey;size:7" json:"month"`
	BusinessId string `gorm:"index;not null" json:"business_id"`
	ProductId  int    `gorm:"index;not null" json:"product_id"`

	BatchCount        int             `gorm:"not null;default:0" json:"batch_count"`
	TotalCurrent      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_current"`
	TotalReserved     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_reserved"`
	TotalAvailable    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_available"`
	MinProductionDate *time.Time      `json:"min_production_date"`
	MaxProductionDate *time.Time      `json:"max_production_date"`

	IsStale   *bool     `gorm:"not null;default:true" json:"is_stale"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// invalidateMonthlySummary marks the batch's month stale inside the ledger
// mutation's transaction. Upserting a stale stub (rather than updating only
// existing rows) lets the background sweep discover months that have never
// been summarized.
func invalidateMonthlySummary(tx *gorm.DB, batch *InventoryBatch) error {
	summary := MonthlySummary{
		SkuId:      batch.SkuId,
		Month:      batch.ProductionMonth,
		BusinessId: batch.BusinessId,
		ProductId:  batch.ProductId,
		IsStale:    utils.NewTrue(),
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku_id"}, {Name: "month"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"is_stale": true}),
	}).Create(&summary).Error
}

// InvalidateMonthlySummary marks one (sku, month) stale outside a ledger
// transaction (maintenance/admin path).
func InvalidateMonthlySummary(ctx context.Context, skuId int, month string) error {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}
	if _, err := utils.ParseMonth(month); err != nil {
		return err
	}
	sku, err := utils.FetchModel[SKU](ctx, businessId, skuId)
	if err != nil {
		return &utils.UnknownEntityError{Entity: "sku", Id: skuId}
	}

	db := config.GetDB()
	summary := MonthlySummary{
		SkuId:      sku.ID,
		Month:      month,
		BusinessId: businessId,
		ProductId:  sku.ProductId,
		IsStale:    utils.NewTrue(),
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku_id"}, {Name: "month"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"is_stale": true}),
	}).Create(&summary).Error
}

// batches counted into a summary: same rule QueryService applies
const summaryStatusFilter = "status = 'N'"

// RecomputeMonthlySummary rebuilds one (sku, month) from the ledger.
// Returns nil when no countable batches exist for that month (the summary
// row, if any, is removed so the month reads as absent). Idempotent:
// recomputing twice without intervening ledger changes yields identical
// values; concurrent recomputes overwrite last-writer-wins.
func RecomputeMonthlySummary(ctx context.Context, skuId int, month string) (*MonthlySummary, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if _, err := utils.ParseMonth(month); err != nil {
		return nil, err
	}

	sku, err := utils.FetchModel[SKU](ctx, businessId, skuId)
	if err != nil {
		return nil, &utils.UnknownEntityError{Entity: "sku", Id: skuId}
	}

	db := config.GetDB()

	// decimal arithmetic in Go keeps the sums exact regardless of how the
	// driver surfaces aggregate columns
	var batches []InventoryBatch
	err = db.WithContext(ctx).
		Where("business_id = ? AND sku_id = ? AND production_month = ?", businessId, skuId, month).
		Where(summaryStatusFilter).
		Find(&batches).Error
	if err != nil {
		return nil, err
	}

	if len(batches) == 0 {
		err := db.WithContext(ctx).
			Where("sku_id = ? AND month = ?", skuId, month).
			Delete(&MonthlySummary{}).Error
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	totalCurrent, totalReserved, totalAvailable := decimal.Zero, decimal.Zero, decimal.Zero
	minDate, maxDate := batches[0].ProductionDate, batches[0].ProductionDate
	for _, batch := range batches {
		totalCurrent = totalCurrent.Add(batch.CurrentQty)
		totalReserved = totalReserved.Add(batch.ReservedQty)
		totalAvailable = totalAvailable.Add(batch.AvailableQty)
		if batch.ProductionDate.Before(minDate) {
			minDate = batch.ProductionDate
		}
		if batch.ProductionDate.After(maxDate) {
			maxDate = batch.ProductionDate
		}
	}

	summary := MonthlySummary{
		SkuId:             skuId,
		Month:             month,
		BusinessId:        businessId,
		ProductId:         sku.ProductId,
		BatchCount:        len(batches),
		TotalCurrent:      totalCurrent,
		TotalReserved:     totalReserved,
		TotalAvailable:    totalAvailable,
		MinProductionDate: &minDate,
		MaxProductionDate: &maxDate,
		IsStale:           utils.NewFalse(),
	}
	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku_id"}, {Name: "month"}},
		UpdateAll: true,
	}).Create(&summary).Error
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// GetMonthlySummary returns the summary for (sku, month), recomputing lazily
// when the stored row is stale or missing. RecordNotFound means the month is
// absent (no countable batches).
func GetMonthlySummary(ctx context.Context, skuId int, month string) (*MonthlySummary, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if _, err := utils.ParseMonth(month); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var summary MonthlySummary
	err := db.WithContext(ctx).
		Where("business_id = ? AND sku_id = ? AND month = ?", businessId, skuId, month).
		First(&summary).Error
	if err == nil && summary.IsStale != nil && !*summary.IsStale {
		return &summary, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	recomputed, rerr := RecomputeMonthlySummary(ctx, skuId, month)
	if rerr != nil {
		return nil, rerr
	}
	if recomputed == nil {
		return nil, utils.ErrorRecordNotFound
	}
	return recomputed, nil
}

// RecomputeStaleSummaries recomputes every summary currently marked stale,
// across businesses. Used by the background sweep and maintenance commands.
func RecomputeStaleSummaries(ctx context.Context) (int, error) {
	db := config.GetDB()

	var staleRows []MonthlySummary
	if err := db.WithContext(ctx).Where("is_stale = ?", true).Find(&staleRows).Error; err != nil {
		return 0, err
	}

	recomputed := 0
	for _, row := range staleRows {
		rowCtx := utils.SetBusinessIdInContext(ctx, row.BusinessId)
		if _, err := RecomputeMonthlySummary(rowCtx, row.SkuId, row.Month); err != nil {
			return recomputed, err
		}
		recomputed++
	}
	return recomputed, nil
}

// RebuildMonthlySummaries drops and recomputes summaries for a business
// (optionally one product) straight from the ledger. The rebuildable-view
// guarantee: this can run at any time without data loss.
func RebuildMonthlySummaries(ctx context.Context, productId int) (int, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return 0, errors.New("business id is required")
	}

	db := config.GetDB()

	deleteCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if productId > 0 {
		deleteCtx = deleteCtx.Where("product_id = ?", productId)
	}
	if err := deleteCtx.Delete(&MonthlySummary{}).Error; err != nil {
		return 0, err
	}

	var keys []struct {
		SkuId           int
		ProductionMonth string
	}
	keyCtx := db.WithContext(ctx).Model(&InventoryBatch{}).
		Distinct("sku_id", "production_month").
		Where("business_id = ?", businessId)
	if productId > 0 {
		keyCtx = keyCtx.Where("product_id = ?", productId)
	}
	if err := keyCtx.Find(&keys).Error; err != nil {
		return 0, err
	}

	rebuilt := 0
	for _, key := range keys {
		if _, err := RecomputeMonthlySummary(ctx, key.SkuId, key.ProductionMonth); err != nil {
			return rebuilt, err
		}
		rebuilt++
	}
	return rebuilt, nil
}
