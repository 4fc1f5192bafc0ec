package models

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/catalog_backend/config"
	"bitbucket.org/mmdatafocus/catalog_backend/utils"
	"github.com/shopspring/decimal"
)

// SKUQuantityRow is one result line of an attribute-filtered quantity query:
// the matching SKU and its summed quantities over the queried scope.
type SKUQuantityRow struct {
	SkuId          int             `json:"sku_id"`
	Signature      string          `json:"signature"`
	Code           string          `json:"code"`
	TotalCurrent   decimal.Decimal `json:"total_current"`
	TotalReserved  decimal.Decimal `json:"total_reserved"`
	TotalAvailable decimal.Decimal `json:"total_available"`
}

// resolveAttributeFilters maps {keyName: valueName} filters to
// (specKeyId, specValueId) pairs against the product's current catalog.
// Filters resolve by name at query time, so a renamed key or value is
// addressed by its new name only.
func resolveAttributeFilters(product *Product, filters map[string]string) ([][2]int, error) {
	pairs := make([][2]int, 0, len(filters))
	for keyName, valueName := range filters {
		var matchedKey *SpecKey
		for i := range product.SpecKeys {
			if product.SpecKeys[i].Name == keyName {
				matchedKey = &product.SpecKeys[i]
				break
			}
		}
		if matchedKey == nil {
			return nil, &utils.UnknownEntityError{Entity: "spec key", Name: keyName}
		}

		valueId := 0
		for _, value := range matchedKey.Values {
			if value.Name == valueName {
				valueId = value.ID
				break
			}
		}
		if valueId == 0 {
			return nil, &utils.UnknownEntityError{Entity: "spec value", Name: valueName}
		}
		pairs = append(pairs, [2]int{matchedKey.ID, valueId})
	}
	return pairs, nil
}

// matchSKUIds intersects the attribute index: a SKU matches when it has a row
// for every requested (key, value) pair. Grouping by sku and counting distinct
// matched keys implements the AND across an OR'd pair list.
func matchSKUIds(ctx context.Context, businessId string, productId int, pairs [][2]int) ([]int, error) {
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Table("sku_attributes").
		Select("sku_id").
		Where("business_id = ? AND product_id = ?", businessId, productId)

	pairCondition := db.Where("1 = 0")
	for _, pair := range pairs {
		pairCondition = pairCondition.Or("spec_key_id = ? AND spec_value_id = ?", pair[0], pair[1])
	}
	dbCtx = dbCtx.Where(pairCondition).
		Group("sku_id").
		Having("COUNT(DISTINCT spec_key_id) = ?", len(pairs))

	var skuIds []int
	if err := dbCtx.Order("sku_id").Scan(&skuIds).Error; err != nil {
		return nil, err
	}
	return skuIds, nil
}

// QueryByAttributes answers "how much stock exists for SKUs matching these
// attribute filters", AND-combined across keys, optionally restricted to one
// production month. With no month it sums batches directly; with a month it
// reads monthly summaries (recomputing stale ones), so both paths agree with
// the ledger. SKUs that match but hold no stock in scope are omitted.
func QueryByAttributes(ctx context.Context, productId int, filters map[string]string, month *string) ([]*SKUQuantityRow, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if len(filters) == 0 {
		return nil, errors.New("at least one attribute filter is required")
	}
	if month != nil && *month != "" {
		if _, err := utils.ParseMonth(*month); err != nil {
			return nil, err
		}
	}

	product, err := utils.FetchModel[Product](ctx, businessId, productId, "SpecKeys", "SpecKeys.Values")
	if err != nil {
		return nil, &utils.UnknownEntityError{Entity: "product", Id: productId}
	}

	pairs, err := resolveAttributeFilters(product, filters)
	if err != nil {
		return nil, err
	}

	skuIds, err := matchSKUIds(ctx, businessId, productId, pairs)
	if err != nil {
		return nil, err
	}
	if len(skuIds) == 0 {
		return []*SKUQuantityRow{}, nil
	}

	if month != nil && *month != "" {
		return quantitiesFromSummaries(ctx, skuIds, *month)
	}
	return quantitiesFromBatches(ctx, businessId, skuIds)
}

// quantitiesFromBatches sums the ledger directly across all months. Decimal
// arithmetic happens in Go so the totals stay exact.
func quantitiesFromBatches(ctx context.Context, businessId string, skuIds []int) ([]*SKUQuantityRow, error) {
	db := config.GetDB()

	var batches []InventoryBatch
	err := db.WithContext(ctx).
		Where("business_id = ? AND sku_id IN ?", businessId, skuIds).
		Where(summaryStatusFilter).
		Order("sku_id, id").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}

	bySku := make(map[int]*SKUQuantityRow)
	rows := make([]*SKUQuantityRow, 0, len(skuIds))
	for _, batch := range batches {
		row, ok := bySku[batch.SkuId]
		if !ok {
			sku, err := GetSKU(ctx, batch.SkuId)
			if err != nil {
				return nil, err
			}
			row = &SKUQuantityRow{SkuId: batch.SkuId, Signature: sku.Signature, Code: sku.Code}
			bySku[batch.SkuId] = row
			rows = append(rows, row)
		}
		row.TotalCurrent = row.TotalCurrent.Add(batch.CurrentQty)
		row.TotalReserved = row.TotalReserved.Add(batch.ReservedQty)
		row.TotalAvailable = row.TotalAvailable.Add(batch.AvailableQty)
	}
	return rows, nil
}

// quantitiesFromSummaries reads the month's aggregates, recomputing through
// GetMonthlySummary so a stale summary never reaches a caller. Absent months
// contribute nothing.
func quantitiesFromSummaries(ctx context.Context, skuIds []int, month string) ([]*SKUQuantityRow, error) {
	rows := make([]*SKUQuantityRow, 0, len(skuIds))
	for _, skuId := range skuIds {
		summary, err := GetMonthlySummary(ctx, skuId, month)
		if errors.Is(err, utils.ErrorRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		sku, err := GetSKU(ctx, skuId)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &SKUQuantityRow{
			SkuId:          skuId,
			Signature:      sku.Signature,
			Code:           sku.Code,
			TotalCurrent:   summary.TotalCurrent,
			TotalReserved:  summary.TotalReserved,
			TotalAvailable: summary.TotalAvailable,
		})
	}
	return rows, nil
}
