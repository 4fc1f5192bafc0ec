package models_test

import (
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/catalog_backend/models"
	"bitbucket.org/mmdatafocus/catalog_backend/utils"
	"github.com/shopspring/decimal"
)

func TestQueryByAttributesAcrossMonths(t *testing.T) {
	ctx := newTestContext(t)
	cat := setupPhoneCatalog(t, ctx)

	red128 := mustCreateSKU(t, ctx, cat.Product.ID,
		map[int]int{cat.ColorKey.ID: cat.Red.ID, cat.Storage.ID: cat.GB128.ID}, "PH-R-128")
	red256 := mustCreateSKU(t, ctx, cat.Product.ID,
		map[int]int{cat.ColorKey.ID: cat.Red.ID, cat.Storage.ID: cat.GB256.ID}, "PH-R-256")
	blue128 := mustCreateSKU(t, ctx, cat.Product.ID,
		map[int]int{cat.ColorKey.ID: cat.Blue.ID, cat.Storage.ID: cat.GB128.ID}, "PH-B-128")

	mustReceiveBatch(t, ctx, red128.ID, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), 100)
	mustReceiveBatch(t, ctx, red128.ID, time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC), 50)
	mustReceiveBatch(t, ctx, red256.ID, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), 30)
	mustReceiveBatch(t, ctx, blue128.ID, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), 70)

	// single filter matches both red SKUs
	rows, err := models.QueryByAttributes(ctx, cat.Product.ID, map[string]string{"color": "Red"}, nil)
	if err != nil {
		t.Fatalf("QueryByAttributes color=Red: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 red SKUs, got %d", len(rows))
	}
	byId := make(map[int]*models.SKUQuantityRow)
	for _, row := range rows {
		byId[row.SkuId] = row
	}
	assertDecimalEqual(t, "red128 total", byId[red128.ID].TotalCurrent, 150)
	assertDecimalEqual(t, "red256 total", byId[red256.ID].TotalCurrent, 30)

	// filters AND together
	rows, err = models.QueryByAttributes(ctx, cat.Product.ID,
		map[string]string{"color": "Red", "storage": "128GB"}, nil)
	if err != nil {
		t.Fatalf("QueryByAttributes red+128: %v", err)
	}
	if len(rows) != 1 || rows[0].SkuId != red128.ID {
		t.Fatalf("expected only red128, got %+v", rows)
	}
	assertDecimalEqual(t, "red128 anded total", rows[0].TotalCurrent, 150)
}

func TestQueryByAttributesForOneMonth(t *testing.T) {
	ctx := newTestContext(t)
	cat := setupPhoneCatalog(t, ctx)

	red128 := mustCreateSKU(t, ctx, cat.Product.ID,
		map[int]int{cat.ColorKey.ID: cat.Red.ID, cat.Storage.ID: cat.GB128.ID}, "PH-R-128")
	red256 := mustCreateSKU(t, ctx, cat.Product.ID,
		map[int]int{cat.ColorKey.ID: cat.Red.ID, cat.Storage.ID: cat.GB256.ID}, "PH-R-256")

	b1 := mustReceiveBatch(t, ctx, red128.ID, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), 100)
	mustReceiveBatch(t, ctx, red128.ID, time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC), 50)
	mustReceiveBatch(t, ctx, red256.ID, time.Date(2026, 4, 12, 0, 0, 0, 0, time.UTC), 30)

	if _, err := models.ReserveBatch(ctx, b1.ID, decimal.NewFromInt(25)); err != nil {
		t.Fatalf("ReserveBatch: %v", err)
	}

	march := "2026-03"
	rows, err := models.QueryByAttributes(ctx, cat.Product.ID, map[string]string{"color": "Red"}, &march)
	if err != nil {
		t.Fatalf("QueryByAttributes march: %v", err)
	}
	// red256 has no march stock and is omitted
	if len(rows) != 1 || rows[0].SkuId != red128.ID {
		t.Fatalf("expected only red128 in march, got %+v", rows)
	}
	assertDecimalEqual(t, "march current", rows[0].TotalCurrent, 100)
	assertDecimalEqual(t, "march reserved", rows[0].TotalReserved, 25)
	assertDecimalEqual(t, "march available", rows[0].TotalAvailable, 75)

	// the month path and the raw-batch path agree
	all, err := models.QueryByAttributes(ctx, cat.Product.ID,
		map[string]string{"color": "Red", "storage": "128GB"}, nil)
	if err != nil {
		t.Fatalf("QueryByAttributes all months: %v", err)
	}
	assertDecimalEqual(t, "all months current", all[0].TotalCurrent, 150)
	assertDecimalEqual(t, "all months reserved", all[0].TotalReserved, 25)
}

func TestQueryByAttributesUnknownNames(t *testing.T) {
	ctx := newTestContext(t)
	cat := setupPhoneCatalog(t, ctx)

	var unknown *utils.UnknownEntityError
	_, err := models.QueryByAttributes(ctx, cat.Product.ID, map[string]string{"weight": "1kg"}, nil)
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownEntityError for unknown key, got %v", err)
	}
	_, err = models.QueryByAttributes(ctx, cat.Product.ID, map[string]string{"color": "Green"}, nil)
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownEntityError for unknown value, got %v", err)
	}
	_, err = models.QueryByAttributes(ctx, cat.Product.ID, map[string]string{}, nil)
	if err == nil {
		t.Fatal("expected empty filter set to be rejected")
	}
}

func TestQueryByAttributesResolvesRenamedNames(t *testing.T) {
	ctx := newTestContext(t)
	cat := setupPhoneCatalog(t, ctx)

	red128 := mustCreateSKU(t, ctx, cat.Product.ID,
		map[int]int{cat.ColorKey.ID: cat.Red.ID, cat.Storage.ID: cat.GB128.ID}, "PH-R-128")
	mustReceiveBatch(t, ctx, red128.ID, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), 40)

	if _, err := models.RenameSpecValue(ctx, cat.Red.ID, "Crimson"); err != nil {
		t.Fatalf("RenameSpecValue: %v", err)
	}

	// the old name no longer resolves
	var unknown *utils.UnknownEntityError
	_, err := models.QueryByAttributes(ctx, cat.Product.ID, map[string]string{"color": "Red"}, nil)
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownEntityError for stale name, got %v", err)
	}

	// the new name addresses the same SKUs
	rows, err := models.QueryByAttributes(ctx, cat.Product.ID, map[string]string{"color": "Crimson"}, nil)
	if err != nil {
		t.Fatalf("QueryByAttributes Crimson: %v", err)
	}
	if len(rows) != 1 || rows[0].SkuId != red128.ID {
		t.Fatalf("expected red128 under its renamed value, got %+v", rows)
	}
}

func TestQueryByAttributesOmitsStocklessSKUs(t *testing.T) {
	ctx := newTestContext(t)
	cat := setupPhoneCatalog(t, ctx)

	// registered but never stocked
	mustCreateSKU(t, ctx, cat.Product.ID,
		map[int]int{cat.ColorKey.ID: cat.Red.ID, cat.Storage.ID: cat.GB128.ID}, "PH-R-128")

	rows, err := models.QueryByAttributes(ctx, cat.Product.ID, map[string]string{"color": "Red"}, nil)
	if err != nil {
		t.Fatalf("QueryByAttributes: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows for stockless SKU, got %+v", rows)
	}
}
