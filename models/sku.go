package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/catalog_backend/config"
	"bitbucket.org/mmdatafocus/catalog_backend/utils"
	"gorm.io/gorm"
)

// SKU is one registered combination of spec values for a product. SKUs are a
// fixed, non-exhaustive subset of the cartesian product of spec values:
// nothing here enumerates combinations, callers submit the ones they want
// materialized.
type SKU struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"index;not null" json:"business_id" binding:"required"`
	ProductId  int    `gorm:"not null;uniqueIndex:idx_skus_product_signature,priority:1" json:"product_id" binding:"required"`
	// Signature is the deterministic serialization of the combination,
	// ascending by key id: "k1:v1|k2:v2|...". The unique index on
	// (product_id, signature) is what makes duplicate SKUs impossible under
	// concurrent creation; application-level prechecks are advisory only.
	Signature    string         `gorm:"size:512;not null;uniqueIndex:idx_skus_product_signature,priority:2" json:"signature"`
	Code         string         `gorm:"size:100" json:"code"`
	Attributes   []SKUAttribute `gorm:"foreignKey:SkuId" json:"attributes"`
	// NameSnapshot is the denormalized {keyName: valueName} projection
	// captured at creation. It is a point-in-time cache: catalog renames do
	// not rewrite it, only RefreshSKUSnapshot does.
	NameSnapshot string     `gorm:"type:text" json:"name_snapshot"`
	SnapshotAt   *time.Time `json:"snapshot_at"`
	IsActive     *bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s SKU) GetBusinessId() string {
	return s.BusinessId
}

// SnapshotNames unmarshals the denormalized name snapshot.
func (s SKU) SnapshotNames() (map[string]string, error) {
	names := make(map[string]string)
	if s.NameSnapshot == "" {
		return names, nil
	}
	if err := json.Unmarshal([]byte(s.NameSnapshot), &names); err != nil {
		return nil, err
	}
	return names, nil
}

type NewSKU struct {
	ProductId int `json:"product_id" binding:"required"`
	// Combination maps spec-key id to the chosen spec-value id, exactly one
	// value per key.
	Combination map[int]int `json:"combination" binding:"required"`
	Code        string      `json:"code"`
}

// ComputeSignature serializes a combination deterministically: pairs sorted
// ascending by key id, "keyId:valueId" joined with "|".
func ComputeSignature(combination map[int]int) string {
	keyIds := make([]int, 0, len(combination))
	for keyId := range combination {
		keyIds = append(keyIds, keyId)
	}
	sort.Ints(keyIds)

	parts := make([]string, 0, len(keyIds))
	for _, keyId := range keyIds {
		parts = append(parts, fmt.Sprintf("%d:%d", keyId, combination[keyId]))
	}
	return strings.Join(parts, "|")
}

// validateCombination checks the combination against the product's declared
// keys and values, and returns the {keyName: valueName} snapshot for the
// chosen pairs.
func validateCombination(product *Product, combination map[int]int) (map[string]string, error) {
	if len(combination) == 0 {
		return nil, &utils.InvalidCombinationError{ProductId: product.ID, Reason: "combination is empty"}
	}

	valuesByKey := make(map[int]map[int]string, len(product.SpecKeys))
	keyNames := make(map[int]string, len(product.SpecKeys))
	for _, key := range product.SpecKeys {
		keyNames[key.ID] = key.Name
		values := make(map[int]string, len(key.Values))
		for _, value := range key.Values {
			values[value.ID] = value.Name
		}
		valuesByKey[key.ID] = values
	}

	snapshot := make(map[string]string, len(combination))
	for keyId, valueId := range combination {
		values, ok := valuesByKey[keyId]
		if !ok {
			return nil, &utils.InvalidCombinationError{
				ProductId: product.ID, KeyId: keyId,
				Reason: "spec key does not belong to product",
			}
		}
		valueName, ok := values[valueId]
		if !ok {
			return nil, &utils.InvalidCombinationError{
				ProductId: product.ID, KeyId: keyId, ValueId: valueId,
				Reason: "spec value does not belong to spec key",
			}
		}
		snapshot[keyNames[keyId]] = valueName
	}

	if product.RequireFullSpec == nil || *product.RequireFullSpec {
		for _, key := range product.SpecKeys {
			if _, ok := combination[key.ID]; !ok {
				return nil, &utils.InvalidCombinationError{
					ProductId: product.ID, KeyId: key.ID,
					Reason: "required spec key missing from combination",
				}
			}
		}
	}

	return snapshot, nil
}

// CreateSKU registers one combination. Racing creators of an identical
// combination resolve at the storage layer: exactly one insert succeeds, the
// other returns DuplicateCombinationError.
func CreateSKU(ctx context.Context, input *NewSKU) (*SKU, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}

	product, err := utils.FetchModel[Product](ctx, businessId, input.ProductId, "SpecKeys", "SpecKeys.Values")
	if err != nil {
		return nil, &utils.UnknownEntityError{Entity: "product", Id: input.ProductId}
	}

	snapshot, err := validateCombination(product, input.Combination)
	if err != nil {
		return nil, err
	}

	signature := ComputeSignature(input.Combination)

	// advisory precheck for a friendly fast path; the unique index is the
	// authoritative guard
	count, err := utils.ResourceCountWhere[SKU](ctx, businessId, "product_id = ? AND signature = ?", input.ProductId, signature)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, &utils.DuplicateCombinationError{ProductId: input.ProductId, Signature: signature}
	}

	snapshotJson, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	sku := SKU{
		BusinessId:   businessId,
		ProductId:    input.ProductId,
		Signature:    signature,
		Code:         input.Code,
		NameSnapshot: string(snapshotJson),
		SnapshotAt:   &now,
	}
	for keyId, valueId := range input.Combination {
		sku.Attributes = append(sku.Attributes, SKUAttribute{
			BusinessId:  businessId,
			ProductId:   input.ProductId,
			SpecKeyId:   keyId,
			SpecValueId: valueId,
		})
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&sku).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &utils.DuplicateCombinationError{ProductId: input.ProductId, Signature: signature}
		}
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), ctx, ActionTypeCreate, sku.ID, "skus", nil, sku, "sku created"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &sku, nil
}

// FindSKUBySignature resolves a combination to its registered SKU, or
// RecordNotFound when that combination was never materialized.
func FindSKUBySignature(ctx context.Context, productId int, combination map[int]int) (*SKU, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if len(combination) == 0 {
		return nil, errors.New("combination is required")
	}

	signature := ComputeSignature(combination)

	db := config.GetDB()
	var sku SKU
	err := db.WithContext(ctx).
		Where("business_id = ? AND product_id = ? AND signature = ?", businessId, productId, signature).
		Preload("Attributes").
		First(&sku).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &sku, nil
}

func GetSKU(ctx context.Context, id int) (*SKU, error) {
	return GetResource[SKU](ctx, id, "Attributes")
}

// GetSKUs lists a product's registered SKUs, optionally restricted to those
// matching {keyName: valueName} attribute filters (AND across keys).
func GetSKUs(ctx context.Context, productId int, filters map[string]string) ([]*SKU, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Where("business_id = ? AND product_id = ?", businessId, productId)

	if len(filters) > 0 {
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
			return []*SKU{}, nil
		}
		dbCtx = dbCtx.Where("id IN ?", skuIds)
	}

	var results []*SKU
	err := dbCtx.Order("signature").
		Preload("Attributes").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// resolveLiveNames joins the SKU's attribute rows against the catalog for
// current key/value names.
func resolveLiveNames(ctx context.Context, sku *SKU) (map[string]string, error) {
	db := config.GetDB()

	var rows []struct {
		KeyName   string
		ValueName string
	}
	err := db.WithContext(ctx).Table("sku_attributes").
		Select("spec_keys.name AS key_name, spec_values.name AS value_name").
		Joins("JOIN spec_keys ON spec_keys.id = sku_attributes.spec_key_id").
		Joins("JOIN spec_values ON spec_values.id = sku_attributes.spec_value_id").
		Where("sku_attributes.sku_id = ?", sku.ID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(rows))
	for _, row := range rows {
		names[row.KeyName] = row.ValueName
	}
	return names, nil
}

// SKUDisplayNames returns the SKU's {keyName: valueName} mapping using the
// product's display strategy: LIVE resolves against the catalog (always
// current), SNAPSHOT reads the stored projection (fast, possibly stale).
func SKUDisplayNames(ctx context.Context, skuId int) (map[string]string, error) {
	sku, err := GetSKU(ctx, skuId)
	if err != nil {
		return nil, &utils.UnknownEntityError{Entity: "sku", Id: skuId}
	}
	product, err := GetProduct(ctx, sku.ProductId)
	if err != nil {
		return nil, err
	}

	if product.DisplayStrategy == DisplayStrategyLive {
		return resolveLiveNames(ctx, sku)
	}
	return sku.SnapshotNames()
}

// RefreshSKUSnapshot re-captures the name snapshot from the current catalog
// names. This is the only path that updates a snapshot after creation;
// catalog renames never do it implicitly. Idempotent.
func RefreshSKUSnapshot(ctx context.Context, skuId int) (*SKU, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	sku, err := utils.FetchModel[SKU](ctx, businessId, skuId, "Attributes")
	if err != nil {
		return nil, &utils.UnknownEntityError{Entity: "sku", Id: skuId}
	}

	names, err := resolveLiveNames(ctx, sku)
	if err != nil {
		return nil, err
	}
	snapshotJson, err := json.Marshal(names)
	if err != nil {
		return nil, err
	}

	before := *sku
	now := time.Now().UTC()

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(sku).Updates(map[string]interface{}{
		"NameSnapshot": string(snapshotJson),
		"SnapshotAt":   &now,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), ctx, ActionTypeUpdate, skuId, "skus", before, sku, "sku snapshot refreshed"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedis[SKU](skuId); err != nil {
		return nil, err
	}
	return sku, nil
}
