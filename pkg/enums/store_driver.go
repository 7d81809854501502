package enums

import (
	"fmt"
	"strings"
)

// StoreDriver identifies the backend holding the fact table.
type StoreDriver string

const (
	StoreBigQuery StoreDriver = "bigquery"
	StorePostgres StoreDriver = "postgres"
	StoreSQLite   StoreDriver = "sqlite"
)

var validStoreDrivers = []StoreDriver{
	StoreBigQuery,
	StorePostgres,
	StoreSQLite,
}

// IsValid reports whether the value is a supported store driver.
func (d StoreDriver) IsValid() bool {
	for _, candidate := range validStoreDrivers {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsSQL reports whether the driver is backed by gorm.
func (d StoreDriver) IsSQL() bool {
	return d == StorePostgres || d == StoreSQLite
}

// ParseStoreDriver converts raw input into StoreDriver.
func ParseStoreDriver(value string) (StoreDriver, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validStoreDrivers {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid store driver %q", value)
}
