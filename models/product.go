package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/catalog_backend/config"
	"bitbucket.org/mmdatafocus/catalog_backend/utils"
	"gorm.io/gorm"
)

// Product is the SPU-level entity: it owns the set of variation dimensions
// (spec keys) its SKUs are combinations of.
type Product struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id" binding:"required"`
	Name            string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Description     string          `gorm:"type:text" json:"description"`
	SpecKeys        []SpecKey       `gorm:"foreignKey:ProductId" json:"spec_keys"`
	RequireFullSpec *bool           `gorm:"not null;default:true" json:"require_full_spec"`
	DisplayStrategy DisplayStrategy `gorm:"size:10;not null;default:'SNAPSHOT'" json:"display_strategy"`
	IsActive        *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p Product) GetBusinessId() string {
	return p.BusinessId
}

type NewProduct struct {
	Name            string          `json:"name" binding:"required"`
	Description     string          `json:"description"`
	RequireFullSpec *bool           `json:"require_full_spec"`
	DisplayStrategy DisplayStrategy `json:"display_strategy"`
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Product](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	displayStrategy := input.DisplayStrategy
	if displayStrategy == "" {
		displayStrategy = DisplayStrategySnapshot
	}
	if !displayStrategy.Valid() {
		return nil, errors.New("invalid display strategy")
	}

	product := Product{
		BusinessId:      businessId,
		Name:            input.Name,
		Description:     input.Description,
		RequireFullSpec: input.RequireFullSpec,
		DisplayStrategy: displayStrategy,
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&product).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), ctx, ActionTypeCreate, product.ID, "products", nil, product, "product created"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisList[Product](businessId); err != nil {
		return nil, err
	}
	return &product, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	return GetResource[Product](ctx, id)
}

func GetProducts(ctx context.Context, name *string) ([]*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	var results []*Product
	err := dbCtx.Order("name").
		Preload("SpecKeys", func(db *gorm.DB) *gorm.DB { return db.Order("display_order, id") }).
		Preload("SpecKeys.Values").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ToggleActiveProduct soft-deactivates (or reactivates) a product. Products
// are never hard-deleted while SKUs reference them; see DeleteProduct.
func ToggleActiveProduct(ctx context.Context, id int, isActive bool) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	return ToggleActiveModel[Product](ctx, businessId, id, isActive)
}

// DeleteProduct removes a product and its catalog (keys and values), but only
// when no SKU references it.
func DeleteProduct(ctx context.Context, id int) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	result, err := utils.FetchModel[Product](ctx, businessId, id, "SpecKeys")
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[SKU](ctx, businessId, "product_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("cannot delete product that has SKUs; deactivate instead")
	}

	db := config.GetDB()
	tx := db.Begin()

	keyIds := make([]int, 0, len(result.SpecKeys))
	for _, key := range result.SpecKeys {
		keyIds = append(keyIds, key.ID)
	}
	if len(keyIds) > 0 {
		if err := tx.WithContext(ctx).Where("spec_key_id IN ?", keyIds).Delete(&SpecValue{}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.WithContext(ctx).Where("product_id = ?", id).Delete(&SpecKey{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&Product{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), ctx, ActionTypeDelete, id, "products", result, nil, "product deleted"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if err := utils.RemoveRedis[Product](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Product](businessId); err != nil {
		return nil, err
	}
	return result, nil
}
