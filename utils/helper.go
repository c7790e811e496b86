package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"bitbucket.org/stitchfocus/garments_backend/config"
	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

var CountryCode = "IN"

// PatternCountTolerance is how far a supplied pattern count may sit from an
// integer before the request is rejected.
var PatternCountTolerance = decimal.NewFromFloat(0.0001)

func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err
	}

	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}

	return nil
}

func ProcessValidationErrors(err error) map[string]string {

	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}

	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}

	return dec, nil
}

// RoundToInt returns d as an int when it sits within PatternCountTolerance of
// an integer; ok is false otherwise. Values that do not survive the trip
// through int64 are rejected rather than wrapped.
func RoundToInt(d decimal.Decimal) (int, bool) {
	rounded := d.Round(0)
	if d.Sub(rounded).Abs().GreaterThan(PatternCountTolerance) {
		return 0, false
	}
	n := rounded.IntPart()
	if !decimal.NewFromInt(n).Equal(rounded) {
		return 0, false
	}
	return int(n), true
}

// NormalizeCodePrefix derives an identifier prefix from a human-readable
// owner name: lowercased, whitespace stripped, truncated to width. Names
// that normalize to nothing fall back to the given default.
func NormalizeCodePrefix(name string, width int, fallback string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	prefix := b.String()
	if prefix == "" {
		return fallback
	}
	if len(prefix) > width {
		prefix = prefix[:width]
	}
	return prefix
}

// returns slice removing duplicate elements
func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

// to get the fiscal year start month of a business
func GetFiscalYearStartMonth(fiscalYear string) (time.Month, error) {
	monthMap := map[string]time.Month{
		"Jan": time.January, "Feb": time.February, "Mar": time.March,
		"Apr": time.April, "May": time.May, "Jun": time.June,
		"Jul": time.July, "Aug": time.August, "Sep": time.September,
		"Oct": time.October, "Nov": time.November, "Dec": time.December,
	}
	month, ok := monthMap[fiscalYear]
	if !ok {
		return 0, errors.New("invalid fiscal year month")
	}
	return month, nil
}

// FiscalYearKey returns the key of the fiscal year containing date, e.g.
// "2025-26" for Apr 2025..Mar 2026 with an April start.
func FiscalYearKey(startMonth time.Month, date time.Time) string {
	year := date.Year()
	if date.Month() < startMonth {
		year--
	}
	if startMonth == time.January {
		return fmt.Sprintf("%d", year)
	}
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}

// BusinessLock serializes lot posting per business across instances.
// Best effort: row locks inside the transaction remain the correctness
// guarantee. The returned release func is nil-safe.
func BusinessLock(ctx context.Context, businessId string, lockType string) (func(), error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}
	lockKey := fmt.Sprintf("%s:%s", lockType, businessId)
	// Contending posters wait their turn instead of failing outright.
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 300),
	})
	if err == redislock.ErrNotObtained {
		return nil, errors.New("could not obtain lock for business")
	} else if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}
