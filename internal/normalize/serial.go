package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aardg/massabalans/internal/orderline"
)

var serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

var (
	errEmptyValue   = errors.New("value is empty")
	errNotFinite    = errors.New("serial is not a finite number")
	errNotISODate   = errors.New("value is not an ISO date")
	errNotInteger   = errors.New("quantity is not an integer")
	errMissingField = errors.New("required column missing from export")
)

// SerialToDate converts a spreadsheet serial day count to a UTC date. The
// time-of-day fraction is dropped.
func SerialToDate(serial float64) time.Time {
	return serialEpoch.AddDate(0, 0, int(math.Floor(serial)))
}

// FormatSerial parses a serial day count and renders it as YYYY-MM-DD.
func FormatSerial(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", errEmptyValue
	}
	serial, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return "", fmt.Errorf("parse serial %q: %w", trimmed, err)
	}
	if math.IsNaN(serial) || math.IsInf(serial, 0) {
		return "", errNotFinite
	}
	return SerialToDate(serial).Format(orderline.DateLayout), nil
}

// FormatISO accepts a date or timestamp starting with YYYY-MM-DD and returns
// the date part.
func FormatISO(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", errEmptyValue
	}
	if len(trimmed) < len(orderline.DateLayout) {
		return "", errNotISODate
	}
	day := trimmed[:len(orderline.DateLayout)]
	if _, err := time.Parse(orderline.DateLayout, day); err != nil {
		return "", errNotISODate
	}
	return day, nil
}

// ParseQuantity accepts integers and integral floats such as "5.0".
func ParseQuantity(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errEmptyValue
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, errNotInteger
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, errNotInteger
	}
	return int64(f), nil
}
