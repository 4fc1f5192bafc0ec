package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/catalog_backend/config"
	"bitbucket.org/mmdatafocus/catalog_backend/models"
	"github.com/xuri/excelize/v2"
)

// Exports monthly summaries to an xlsx file for offline review.
func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	productID := flag.Int("product-id", 0, "Optional: limit export to one product")
	month := flag.String("month", "", "Optional: limit export to one month (YYYY-MM)")
	outPath := flag.String("out", "monthly_summaries.xlsx", "Output file path")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	dbCtx := db.Where("business_id = ?", strings.TrimSpace(*businessID))
	if *productID > 0 {
		dbCtx = dbCtx.Where("product_id = ?", *productID)
	}
	if strings.TrimSpace(*month) != "" {
		dbCtx = dbCtx.Where("month = ?", strings.TrimSpace(*month))
	}

	var summaries []models.MonthlySummary
	if err := dbCtx.Order("product_id, sku_id, month").Find(&summaries).Error; err != nil {
		fmt.Fprintf(os.Stderr, "load summaries: %v\n", err)
		os.Exit(1)
	}

	f := excelize.NewFile()
	headers := []string{"ProductId", "SkuId", "Month", "BatchCount", "TotalCurrent", "TotalReserved", "TotalAvailable", "MinProductionDate", "MaxProductionDate", "Stale"}
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue("Sheet1", col+"1", h)
	}

	for i, s := range summaries {
		row := fmt.Sprint(i + 2)
		f.SetCellValue("Sheet1", "A"+row, s.ProductId)
		f.SetCellValue("Sheet1", "B"+row, s.SkuId)
		f.SetCellValue("Sheet1", "C"+row, s.Month)
		f.SetCellValue("Sheet1", "D"+row, s.BatchCount)
		f.SetCellValue("Sheet1", "E"+row, s.TotalCurrent.String())
		f.SetCellValue("Sheet1", "F"+row, s.TotalReserved.String())
		f.SetCellValue("Sheet1", "G"+row, s.TotalAvailable.String())
		if s.MinProductionDate != nil {
			f.SetCellValue("Sheet1", "H"+row, s.MinProductionDate.Format("2006-01-02"))
		}
		if s.MaxProductionDate != nil {
			f.SetCellValue("Sheet1", "I"+row, s.MaxProductionDate.Format("2006-01-02"))
		}
		f.SetCellValue("Sheet1", "J"+row, s.IsStale != nil && *s.IsStale)
	}

	if err := f.SaveAs(*outPath); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	fmt.Printf("exported %d summaries to %s\n", len(summaries), *outPath)
}
