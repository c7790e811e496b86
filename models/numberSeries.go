package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"bitbucket.org/stitchfocus/garments_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NumberSeries holds one explicit integer counter per (business, series key).
// Concurrent callers for the same key serialize on the row lock; different
// keys never contend. A rolled-back transaction returns its value unconsumed,
// so gaps are possible but duplicates are not.
type NumberSeries struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index:idx_series_key,unique;not null" json:"business_id"`
	SeriesKey  string    `gorm:"index:idx_series_key,unique;size:100;not null" json:"series_key"`
	LastValue  int       `gorm:"not null;default:0" json:"last_value"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NextSequence returns the next value of the per-owner sequence, starting at
// 1, inside the caller's transaction. The counter row is read FOR UPDATE;
// if no row exists yet one is inserted. A duplicate-key failure on that
// insert means another transaction created the row first, in which case the
// locked read is retried once.
func NextSequence(tx *gorm.DB, businessId string, seriesKey string) (int, error) {
	for attempt := 0; attempt < 2; attempt++ {
		var series NumberSeries
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("business_id = ? AND series_key = ?", businessId, seriesKey).
			First(&series).Error
		if err == nil {
			next := series.LastValue + 1
			if err := tx.Model(&NumberSeries{}).Where("id = ?", series.ID).
				Update("last_value", next).Error; err != nil {
				return 0, err
			}
			return next, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			if utils.IsLockWaitTimeout(err) {
				return 0, &utils.LockTimeoutError{Resource: "number series " + seriesKey, Err: err}
			}
			return 0, err
		}

		series = NumberSeries{BusinessId: businessId, SeriesKey: seriesKey, LastValue: 1}
		if err := tx.Create(&series).Error; err == nil {
			return 1, nil
		}
		// lost the insert race; loop back to the locked read
	}
	return 0, errors.New("could not allocate sequence for " + seriesKey)
}

const (
	// DefaultLotPrefix is used when the owning entity's name normalizes to
	// nothing usable.
	DefaultLotPrefix = "lot"
	lotPrefixWidth   = 8
)

// FormatLotNumber renders a sequence value as a lot identifier. Formatting
// is presentation only; the counter value is the identity.
func FormatLotNumber(format SeriesFormat, ownerName string, n int) string {
	prefix := utils.NormalizeCodePrefix(ownerName, lotPrefixWidth, DefaultLotPrefix)
	switch format {
	case SeriesFormatPadded5:
		return fmt.Sprintf("%s%05d", prefix, n)
	default:
		return prefix + strconv.Itoa(n)
	}
}

// FormatChallanNumber renders a challan number within a consignee's fiscal
// year, e.g. "CH/2025-26/00042".
func FormatChallanNumber(fiscalYearKey string, n int) string {
	return fmt.Sprintf("CH/%s/%05d", fiscalYearKey, n)
}

// LotSeriesKey scopes lot numbering per owning entity and lot type.
func LotSeriesKey(lotType LotType, ownerId int) string {
	return fmt.Sprintf("lot:%s:%d", lotType, ownerId)
}

// ChallanSeriesKey scopes challan numbering per consignee and fiscal year.
func ChallanSeriesKey(consigneeId int, fiscalYearKey string) string {
	return fmt.Sprintf("challan:%d:%s", consigneeId, fiscalYearKey)
}
