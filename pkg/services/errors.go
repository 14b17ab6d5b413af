package services

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvalidInputError 入力の形状・値域・モデル種別が不正（呼び出し側の誤り）
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// DegenerateDataError 統計量が定義できないデータ（例: 合計点の分散が0）
type DegenerateDataError struct {
	Reason string
}

func (e *DegenerateDataError) Error() string {
	return "degenerate data: " + e.Reason
}

func invalidInputf(format string, args ...interface{}) error {
	return &InvalidInputError{Reason: fmt.Sprintf(format, args...)}
}

func degenerateDataf(format string, args ...interface{}) error {
	return &DegenerateDataError{Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidInput reports whether err (or anything it wraps) is an InvalidInputError.
func IsInvalidInput(err error) bool {
	var target *InvalidInputError
	return errors.As(err, &target)
}

// IsDegenerateData reports whether err (or anything it wraps) is a DegenerateDataError.
func IsDegenerateData(err error) bool {
	var target *DegenerateDataError
	return errors.As(err, &target)
}
