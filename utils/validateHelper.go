package utils

import (
	"context"
)

// check if id exists, using ctx's business_id in WHERE, return RecordNotFound error
func ValidateResourceId[T any](ctx context.Context, businessId string, id interface{}) error {

	count, err := ResourceCountWhere[T](ctx, businessId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

// validate the value of field is unique within the business. (excludeId = 0 for create)
func ValidateUnique[T any](ctx context.Context, businessId string, field string, value interface{}, excludeId int) error {

	count, err := ResourceCountWhere[T](ctx, businessId, field+" = ? AND id != ?", value, excludeId)
	if err != nil {
		return err
	}
	if count > 0 {
		return NewValidationError(field, "%s already exists", field)
	}

	return nil
}
