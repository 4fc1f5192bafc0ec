package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/catalog_backend/config"
	"bitbucket.org/mmdatafocus/catalog_backend/utils"
	"gorm.io/gorm"
)

// SpecKey is one variation dimension of a product (e.g. "color"). Identity is
// the synthetic id; the name is display-only and freely renameable, so
// downstream records (SKUs, attribute index rows) reference the id and are
// never rewritten on rename.
type SpecKey struct {
	ID           int         `gorm:"primary_key" json:"id"`
	BusinessId   string      `gorm:"index;not null" json:"business_id" binding:"required"`
	ProductId    int         `gorm:"index;not null" json:"product_id" binding:"required"`
	Name         string      `gorm:"size:50;not null" json:"name" binding:"required"`
	DisplayOrder int         `gorm:"not null;default:0" json:"display_order"`
	Values       []SpecValue `gorm:"foreignKey:SpecKeyId" json:"values"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (k SpecKey) GetBusinessId() string {
	return k.BusinessId
}

// SpecValue is one permitted choice of a spec key (e.g. "red" for "color").
// Same mutable-name/stable-identity split as SpecKey.
type SpecValue struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id" binding:"required"`
	SpecKeyId  int       `gorm:"index;not null" json:"spec_key_id" binding:"required"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (v SpecValue) GetBusinessId() string {
	return v.BusinessId
}

type NewSpecKey struct {
	ProductId    int    `json:"product_id" binding:"required"`
	Name         string `json:"name" binding:"required"`
	DisplayOrder int    `json:"display_order"`
}

type NewSpecValue struct {
	SpecKeyId int    `json:"spec_key_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
}

func DefineSpecKey(ctx context.Context, input *NewSpecKey) (*SpecKey, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Product](ctx, businessId, input.ProductId); err != nil {
		return nil, &utils.UnknownEntityError{Entity: "product", Id: input.ProductId}
	}
	// key names are unique within one product; unrelated products may reuse them
	count, err := utils.ResourceCountWhere[SpecKey](ctx, businessId, "product_id = ? AND name = ?", input.ProductId, input.Name)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("duplicate spec key name")
	}

	specKey := SpecKey{
		BusinessId:   businessId,
		ProductId:    input.ProductId,
		Name:         input.Name,
		DisplayOrder: input.DisplayOrder,
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&specKey).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), ctx, ActionTypeCreate, specKey.ID, "spec_keys", nil, specKey, "spec key defined"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedis[Product](input.ProductId); err != nil {
		return nil, err
	}
	return &specKey, nil
}

// RenameSpecKey changes the display name only. SKU signatures and snapshots
// reference the key id, so nothing downstream is touched.
func RenameSpecKey(ctx context.Context, keyId int, newName string) (*SpecKey, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if newName == "" {
		return nil, errors.New("name is required")
	}

	specKey, err := utils.FetchModel[SpecKey](ctx, businessId, keyId)
	if err != nil {
		return nil, &utils.UnknownEntityError{Entity: "spec key", Id: keyId}
	}
	count, err := utils.ResourceCountWhere[SpecKey](ctx, businessId, "product_id = ? AND name = ? AND NOT id = ?", specKey.ProductId, newName, keyId)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("duplicate spec key name")
	}

	before := *specKey

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(specKey).Update("Name", newName).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), ctx, ActionTypeRename, keyId, "spec_keys", before, specKey, "spec key renamed"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedis[SpecKey](keyId); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[Product](specKey.ProductId); err != nil {
		return nil, err
	}
	return specKey, nil
}

func DefineSpecValue(ctx context.Context, input *NewSpecValue) (*SpecValue, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	specKey, err := utils.FetchModel[SpecKey](ctx, businessId, input.SpecKeyId)
	if err != nil {
		return nil, &utils.UnknownEntityError{Entity: "spec key", Id: input.SpecKeyId}
	}
	// value names are unique within one key; other keys may reuse them
	count, err := utils.ResourceCountWhere[SpecValue](ctx, businessId, "spec_key_id = ? AND name = ?", input.SpecKeyId, input.Name)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("duplicate spec value name")
	}

	specValue := SpecValue{
		BusinessId: businessId,
		SpecKeyId:  input.SpecKeyId,
		Name:       input.Name,
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&specValue).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), ctx, ActionTypeCreate, specValue.ID, "spec_values", nil, specValue, "spec value defined"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedis[SpecKey](input.SpecKeyId); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[Product](specKey.ProductId); err != nil {
		return nil, err
	}
	return &specValue, nil
}

// RenameSpecValue changes the display name only; see RenameSpecKey.
func RenameSpecValue(ctx context.Context, valueId int, newName string) (*SpecValue, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if newName == "" {
		return nil, errors.New("name is required")
	}

	specValue, err := utils.FetchModel[SpecValue](ctx, businessId, valueId)
	if err != nil {
		return nil, &utils.UnknownEntityError{Entity: "spec value", Id: valueId}
	}
	count, err := utils.ResourceCountWhere[SpecValue](ctx, businessId, "spec_key_id = ? AND name = ? AND NOT id = ?", specValue.SpecKeyId, newName, valueId)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("duplicate spec value name")
	}

	before := *specValue

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Model(specValue).Update("Name", newName).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), ctx, ActionTypeRename, valueId, "spec_values", before, specValue, "spec value renamed"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedis[SpecValue](valueId); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[SpecKey](specValue.SpecKeyId); err != nil {
		return nil, err
	}
	return specValue, nil
}

// ListKeysAndValues returns the product's spec keys (display order) with
// their permitted values.
func ListKeysAndValues(ctx context.Context, productId int) ([]*SpecKey, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateResourceId[Product](ctx, businessId, productId); err != nil {
		return nil, &utils.UnknownEntityError{Entity: "product", Id: productId}
	}

	db := config.GetDB()
	var results []*SpecKey
	err := db.WithContext(ctx).
		Where("business_id = ? AND product_id = ?", businessId, productId).
		Order("display_order, id").
		Preload("Values", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
