package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/stitchfocus/garments_backend/config"
	"bitbucket.org/stitchfocus/garments_backend/models"
	"bitbucket.org/stitchfocus/garments_backend/utils"
)

type NewStageConsumption struct {
	LotNumber   string           `json:"lot_number"`
	SizeLabel   string           `json:"size_label" binding:"required"`
	Stage       models.StageType `json:"stage" binding:"required"`
	Pieces      int              `json:"pieces" binding:"required"`
	ConsigneeId int              `json:"consignee_id"`
}

// ConsumeLotQuantity records a downstream stage's draw against a (lot, size)
// pair. Challan-stage draws additionally allocate a challan number from the
// consignee's fiscal-year series before the consumption is validated, all in
// the same transaction.
func ConsumeLotQuantity(ctx context.Context, input *NewStageConsumption) (*models.StageConsumption, error) {
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	consume := models.ConsumeInput{
		LotNumber: input.LotNumber,
		SizeLabel: input.SizeLabel,
		Stage:     input.Stage,
		Pieces:    input.Pieces,
	}

	if input.Stage == models.StageTypeChallan {
		if input.ConsigneeId <= 0 {
			return nil, utils.NewValidationError("consignee_id", "consignee is required for challan")
		}
		if err := utils.ValidateResourceId[models.Consignee](ctx, businessId, input.ConsigneeId); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				return nil, utils.NewValidationError("consignee_id", "consignee not found")
			}
			return nil, err
		}

		business, err := models.GetBusinessById2(tx, businessId)
		if err != nil {
			config.LogError(logger, "consumptionWorkflow.go", "ConsumeLotQuantity", "GetBusiness", businessId, err)
			return nil, err
		}
		startMonth, err := utils.GetFiscalYearStartMonth(business.FiscalYear)
		if err != nil {
			return nil, err
		}
		fiscalKey := utils.FiscalYearKey(startMonth, time.Now().UTC())

		seq, err := models.NextSequence(tx, businessId, models.ChallanSeriesKey(input.ConsigneeId, fiscalKey))
		if err != nil {
			config.LogError(logger, "consumptionWorkflow.go", "ConsumeLotQuantity", "NextSequence", input.ConsigneeId, err)
			return nil, err
		}
		challanNumber := models.FormatChallanNumber(fiscalKey, seq)
		consume.ChallanNumber = &challanNumber
		consume.ConsigneeId = &input.ConsigneeId
	}

	record, err := models.TryConsume(tx, businessId, consume)
	if err != nil {
		if !utils.IsClientError(err) {
			config.LogError(logger, "consumptionWorkflow.go", "ConsumeLotQuantity", "TryConsume", consume, err)
		}
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		config.LogError(logger, "consumptionWorkflow.go", "ConsumeLotQuantity", "Commit", input.LotNumber, err)
		return nil, err
	}
	committed = true
	return record, nil
}

// TopUpConsumption adds pieces to an existing consumption record after
// revalidating the remainder under the size-row lock.
func TopUpConsumption(ctx context.Context, recordId int, pieces int) (*models.StageConsumption, error) {
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	record, err := models.AddToConsumption(tx, businessId, recordId, pieces)
	if err != nil {
		if !utils.IsClientError(err) {
			config.LogError(logger, "consumptionWorkflow.go", "TopUpConsumption", "AddToConsumption", recordId, err)
		}
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		config.LogError(logger, "consumptionWorkflow.go", "TopUpConsumption", "Commit", recordId, err)
		return nil, err
	}
	committed = true
	return record, nil
}

// RemainingForSize reports how many pieces are still unconsumed for a
// (lot, size) pair.
func RemainingForSize(ctx context.Context, lotNumber string, sizeLabel string) (int, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return 0, errors.New("business id is required")
	}
	db := config.GetDB()
	return models.Remaining(db.WithContext(ctx), businessId, lotNumber, sizeLabel)
}
