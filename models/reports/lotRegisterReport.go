package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/stitchfocus/garments_backend/config"
	"bitbucket.org/stitchfocus/garments_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type LotRegisterRow struct {
	LotNumber      string          `json:"lot_number"`
	Sku            string          `json:"sku"`
	FabricType     string          `json:"fabric_type"`
	OwnerName      string          `json:"owner_name"`
	TotalPieces    int             `json:"total_pieces"`
	BundleCount    int             `json:"bundle_count"`
	SizeCount      int             `json:"size_count"`
	WeightUsed     decimal.Decimal `json:"weight_used"`
	ConsumedPieces int             `json:"consumed_pieces"`
	CreatedAt      time.Time       `json:"created_at"`
}

// GetLotRegisterReport lists every lot of the business with size/bundle
// rollups and the total consumed so far across downstream stages.
func GetLotRegisterReport(ctx context.Context) ([]*LotRegisterRow, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	sql := `
SELECT
    cl.lot_number,
    cl.sku,
    cl.fabric_type,
    cl.owner_name,
    cl.total_pieces,
    COALESCE(sz.size_count, 0) AS size_count,
    COALESCE(sz.bundle_count, 0) AS bundle_count,
    COALESCE(rc.weight_used, 0) AS weight_used,
    COALESCE(sc.consumed_pieces, 0) AS consumed_pieces,
    cl.created_at
FROM
    cutting_lots cl
    LEFT JOIN (
        SELECT lot_id, COUNT(id) AS size_count, SUM(bundle_count) AS bundle_count
        FROM lot_sizes GROUP BY lot_id
    ) AS sz ON sz.lot_id = cl.id
    LEFT JOIN (
        SELECT lot_id, SUM(weight_used) AS weight_used
        FROM lot_roll_consumptions GROUP BY lot_id
    ) AS rc ON rc.lot_id = cl.id
    LEFT JOIN (
        SELECT business_id, lot_number, SUM(pieces) AS consumed_pieces
        FROM stage_consumptions GROUP BY business_id, lot_number
    ) AS sc ON sc.business_id = cl.business_id AND sc.lot_number = cl.lot_number
WHERE
    cl.business_id = ?
ORDER BY cl.id DESC
`

	var rows []*LotRegisterRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, businessId).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ExportLotRegisterExcel renders the lot register as a workbook.
func ExportLotRegisterExcel(ctx context.Context) (*excelize.File, error) {
	rows, err := GetLotRegisterReport(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "Lot Register"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{"Lot No.", "SKU", "Fabric", "Cutting Master", "Pieces", "Bundles", "Sizes", "Weight Used", "Consumed", "Created"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for i, r := range rows {
		rowNo := i + 2
		f.SetCellValue(sheet, "A"+fmt.Sprint(rowNo), r.LotNumber)
		f.SetCellValue(sheet, "B"+fmt.Sprint(rowNo), r.Sku)
		f.SetCellValue(sheet, "C"+fmt.Sprint(rowNo), r.FabricType)
		f.SetCellValue(sheet, "D"+fmt.Sprint(rowNo), r.OwnerName)
		f.SetCellValue(sheet, "E"+fmt.Sprint(rowNo), r.TotalPieces)
		f.SetCellValue(sheet, "F"+fmt.Sprint(rowNo), r.BundleCount)
		f.SetCellValue(sheet, "G"+fmt.Sprint(rowNo), r.SizeCount)
		f.SetCellValue(sheet, "H"+fmt.Sprint(rowNo), r.WeightUsed.InexactFloat64())
		f.SetCellValue(sheet, "I"+fmt.Sprint(rowNo), r.ConsumedPieces)
		f.SetCellValue(sheet, "J"+fmt.Sprint(rowNo), r.CreatedAt.Format("2006-01-02"))
	}

	return f, nil
}
