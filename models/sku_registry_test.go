package models_test

import (
	"errors"
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/catalog_backend/models"
	"bitbucket.org/mmdatafocus/catalog_backend/utils"
)

func TestComputeSignatureIsOrderIndependent(t *testing.T) {
	a := models.ComputeSignature(map[int]int{3: 30, 1: 10, 2: 20})
	b := models.ComputeSignature(map[int]int{1: 10, 2: 20, 3: 30})
	if a != b {
		t.Fatalf("signatures differ: %s vs %s", a, b)
	}
	if a != "1:10|2:20|3:30" {
		t.Fatalf("unexpected signature format: %s", a)
	}
}

func TestCreateSKUAndFindBySignature(t *testing.T) {
	ctx := newTestContext(t)
	cat := setupPhoneCatalog(t, ctx)

	combination := map[int]int{cat.ColorKey.ID: cat.Red.ID, cat.Storage.ID: cat.GB128.ID}
	sku := mustCreateSKU(t, ctx, cat.Product.ID, combination, "PH-R-128")

	names, err := sku.SnapshotNames()
	if err != nil {
		t.Fatalf("SnapshotNames: %v", err)
	}
	if names["color"] != "Red" || names["storage"] != "128GB" {
		t.Fatalf("unexpected snapshot: %v", names)
	}

	found, err := models.FindSKUBySignature(ctx, cat.Product.ID, combination)
	if err != nil {
		t.Fatalf("FindSKUBySignature: %v", err)
	}
	if found.ID != sku.ID {
		t.Fatalf("resolved wrong SKU: %d vs %d", found.ID, sku.ID)
	}

	// a combination never registered resolves to not-found
	_, err = models.FindSKUBySignature(ctx, cat.Product.ID,
		map[int]int{cat.ColorKey.ID: cat.Blue.ID, cat.Storage.ID: cat.GB256.ID})
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestCreateSKURejectsDuplicateCombination(t *testing.T) {
	ctx := newTestContext(t)
	cat := setupPhoneCatalog(t, ctx)

	combination := map[int]int{cat.ColorKey.ID: cat.Red.ID, cat.Storage.ID: cat.GB128.ID}
	mustCreateSKU(t, ctx, cat.Product.ID, combination, "PH-R-128")

	_, err := models.CreateSKU(ctx, &models.NewSKU{ProductId: cat.Product.ID, Combination: combination, Code: "PH-R-128-DUP"})
	var dup *utils.DuplicateCombinationError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateCombinationError, got %v", err)
	}

	// the other color is a distinct combination
	mustCreateSKU(t, ctx, cat.Product.ID,
		map[int]int{cat.ColorKey.ID: cat.Blue.ID, cat.Storage.ID: cat.GB128.ID}, "PH-B-128")
}

func TestCreateSKUConcurrentDuplicates(t *testing.T) {
	ctx := newTestContext(t)
	cat := setupPhoneCatalog(t, ctx)

	combination := map[int]int{cat.ColorKey.ID: cat.Red.ID, cat.Storage.ID: cat.GB128.ID}

	const racers = 4
	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = models.CreateSKU(ctx, &models.NewSKU{ProductId: cat.Product.ID, Combination: combination})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var dup *utils.DuplicateCombinationError
		if !errors.As(err, &dup) {
			t.Fatalf("racer failed with unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one racer to win, got %d", succeeded)
	}

	skus, err := models.GetSKUs(ctx, cat.Product.ID, nil)
	if err != nil {
		t.Fatalf("GetSKUs: %v", err)
	}
	if len(skus) != 1 {
		t.Fatalf("expected 1 SKU after race, got %d", len(skus))
	}
}

func TestGetSKUsWithAttributeFilter(t *testing.T) {
	ctx := newTestContext(t)
	cat := setupPhoneCatalog(t, ctx)

	red128 := mustCreateSKU(t, ctx, cat.Product.ID,
		map[int]int{cat.ColorKey.ID: cat.Red.ID, cat.Storage.ID: cat.GB128.ID}, "PH-R-128")
	mustCreateSKU(t, ctx, cat.Product.ID,
		map[int]int{cat.ColorKey.ID: cat.Blue.ID, cat.Storage.ID: cat.GB128.ID}, "PH-B-128")

	all, err := models.GetSKUs(ctx, cat.Product.ID, nil)
	if err != nil {
		t.Fatalf("GetSKUs: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 SKUs, got %d", len(all))
	}

	redOnly, err := models.GetSKUs(ctx, cat.Product.ID, map[string]string{"color": "Red"})
	if err != nil {
		t.Fatalf("GetSKUs filtered: %v", err)
	}
	if len(redOnly) != 1 || redOnly[0].ID != red128.ID {
		t.Fatalf("expected only red128, got %d SKUs", len(redOnly))
	}
}

func TestCreateSKURejectsInvalidCombinations(t *testing.T) {
	ctx := newTestContext(t)
	cat := setupPhoneCatalog(t, ctx)

	cases := []struct {
		name        string
		combination map[int]int
	}{
		{"unknown key", map[int]int{999999: cat.Red.ID, cat.Storage.ID: cat.GB128.ID}},
		{"value from wrong key", map[int]int{cat.ColorKey.ID: cat.GB128.ID, cat.Storage.ID: cat.GB256.ID}},
		{"missing required key", map[int]int{cat.ColorKey.ID: cat.Red.ID}},
		{"empty", map[int]int{}},
	}
	for _, tc := range cases {
		_, err := models.CreateSKU(ctx, &models.NewSKU{ProductId: cat.Product.ID, Combination: tc.combination})
		var invalid *utils.InvalidCombinationError
		if !errors.As(err, &invalid) {
			t.Fatalf("%s: expected InvalidCombinationError, got %v", tc.name, err)
		}
	}
}

func TestCreateSKUPartialSpecWhenNotRequired(t *testing.T) {
	ctx := newTestContext(t)

	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:            "Cable",
		RequireFullSpec: utils.NewFalse(),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	colorKey, err := models.DefineSpecKey(ctx, &models.NewSpecKey{ProductId: product.ID, Name: "color"})
	if err != nil {
		t.Fatalf("DefineSpecKey: %v", err)
	}
	lengthKey, err := models.DefineSpecKey(ctx, &models.NewSpecKey{ProductId: product.ID, Name: "length"})
	if err != nil {
		t.Fatalf("DefineSpecKey: %v", err)
	}
	black, err := models.DefineSpecValue(ctx, &models.NewSpecValue{SpecKeyId: colorKey.ID, Name: "Black"})
	if err != nil {
		t.Fatalf("DefineSpecValue: %v", err)
	}
	_ = lengthKey

	// length omitted; allowed because the product does not require full spec
	mustCreateSKU(t, ctx, product.ID, map[int]int{colorKey.ID: black.ID}, "CB-BLK")
}

func TestSKUDisplayNamesFollowStrategy(t *testing.T) {
	ctx := newTestContext(t)

	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:            "Shirt",
		DisplayStrategy: models.DisplayStrategyLive,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	sizeKey, err := models.DefineSpecKey(ctx, &models.NewSpecKey{ProductId: product.ID, Name: "size"})
	if err != nil {
		t.Fatalf("DefineSpecKey: %v", err)
	}
	large, err := models.DefineSpecValue(ctx, &models.NewSpecValue{SpecKeyId: sizeKey.ID, Name: "L"})
	if err != nil {
		t.Fatalf("DefineSpecValue: %v", err)
	}

	sku := mustCreateSKU(t, ctx, product.ID, map[int]int{sizeKey.ID: large.ID}, "SH-L")

	if _, err := models.RenameSpecValue(ctx, large.ID, "Large"); err != nil {
		t.Fatalf("RenameSpecValue: %v", err)
	}

	// LIVE resolves current catalog names
	names, err := models.SKUDisplayNames(ctx, sku.ID)
	if err != nil {
		t.Fatalf("SKUDisplayNames: %v", err)
	}
	if names["size"] != "Large" {
		t.Fatalf("live display should see the rename, got %v", names)
	}

	// snapshot on the record itself still holds creation-time names
	reloaded, err := models.GetSKU(ctx, sku.ID)
	if err != nil {
		t.Fatalf("GetSKU: %v", err)
	}
	snapshot, err := reloaded.SnapshotNames()
	if err != nil {
		t.Fatalf("SnapshotNames: %v", err)
	}
	if snapshot["size"] != "L" {
		t.Fatalf("snapshot should be untouched by rename, got %v", snapshot)
	}
}

func TestRefreshSKUSnapshot(t *testing.T) {
	ctx := newTestContext(t)
	cat := setupPhoneCatalog(t, ctx)

	sku := mustCreateSKU(t, ctx, cat.Product.ID,
		map[int]int{cat.ColorKey.ID: cat.Red.ID, cat.Storage.ID: cat.GB128.ID}, "PH-R-128")

	if _, err := models.RenameSpecValue(ctx, cat.Red.ID, "Crimson"); err != nil {
		t.Fatalf("RenameSpecValue: %v", err)
	}

	refreshed, err := models.RefreshSKUSnapshot(ctx, sku.ID)
	if err != nil {
		t.Fatalf("RefreshSKUSnapshot: %v", err)
	}
	names, err := refreshed.SnapshotNames()
	if err != nil {
		t.Fatalf("SnapshotNames: %v", err)
	}
	if names["color"] != "Crimson" {
		t.Fatalf("refresh should capture current names, got %v", names)
	}

	// refreshing again changes nothing
	again, err := models.RefreshSKUSnapshot(ctx, sku.ID)
	if err != nil {
		t.Fatalf("RefreshSKUSnapshot (second): %v", err)
	}
	namesAgain, err := again.SnapshotNames()
	if err != nil {
		t.Fatalf("SnapshotNames: %v", err)
	}
	if namesAgain["color"] != "Crimson" || namesAgain["storage"] != "128GB" {
		t.Fatalf("second refresh should be a no-op, got %v", namesAgain)
	}
}
