package models

import "time"

// SKUAttribute is the derived columnar index over SKU combinations: one row
// per (sku, key, value) choice, written in the same transaction as the SKU.
// Attribute-filtered queries intersect these rows instead of unpacking
// signatures.
type SKUAttribute struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;not null" json:"business_id"`
	ProductId   int       `gorm:"index:idx_sku_attributes_lookup,priority:1;not null" json:"product_id"`
	SpecKeyId   int       `gorm:"index:idx_sku_attributes_lookup,priority:2;not null;uniqueIndex:idx_sku_attributes_sku_key,priority:2" json:"spec_key_id"`
	SpecValueId int       `gorm:"index:idx_sku_attributes_lookup,priority:3;not null" json:"spec_value_id"`
	SkuId       int       `gorm:"index;not null;uniqueIndex:idx_sku_attributes_sku_key,priority:1" json:"sku_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
