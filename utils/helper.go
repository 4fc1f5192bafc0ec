package utils

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/catalog_backend/config"
	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// model input structs carry `binding` tags
	v.SetTagName("binding")
	return v
}

// ValidateInput checks an input struct's binding tags; on failure it returns
// an error whose message lists field:rule pairs.
func ValidateInput(input interface{}) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	parts := make([]string, 0, len(validationErrors))
	for _, ve := range validationErrors {
		parts = append(parts, ve.Field()+":"+ve.Tag())
	}
	return errors.New("invalid input (" + strings.Join(parts, ", ") + ")")
}

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errorResponse
	}
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func UniqueSlice[T comparable](slc []T) []T {
	seen := make(map[T]bool, len(slc))
	result := make([]T, 0, len(slc))
	for _, v := range slc {
		if !seen[v] {
			seen[v] = true
			result = append(result, v)
		}
	}
	return result
}

// MonthOf truncates a date to its calendar month key ("2006-01"), the
// partition key for batch aggregation.
func MonthOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ParseMonth parses a "2006-01" month key to the first instant of that month
// in UTC.
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(month))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q (want YYYY-MM): %w", month, err)
	}
	return t, nil
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

func GetTypeName[T any]() string {
	var v T
	typeOfT := reflect.TypeOf(v)
	return typeOfT.Name()
}

// WithDistributedLock runs fn while holding a redis lock for the key, so only
// one process performs the guarded work at a time. When redis is not
// configured the fn runs unguarded (single-process deployments).
func WithDistributedLock(ctx context.Context, lockKey string, ttl time.Duration, fn func() error) error {
	locker := config.GetRedisLock()
	if locker == nil {
		return fn()
	}
	lock, err := locker.Obtain(ctx, lockKey, ttl, nil)
	if err == redislock.ErrNotObtained {
		return err
	} else if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release(ctx)
	}()
	return fn()
}

// ErrLockNotObtained is re-exported so callers can skip work another instance
// is already doing without importing redislock.
var ErrLockNotObtained = redislock.ErrNotObtained
