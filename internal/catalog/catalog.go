// Package catalog describes the sellable products and how they are grouped
// into product-line worksheets.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/aardg/massabalans/pkg/errors"
)

//go:embed default.yaml
var defaultCatalog []byte

type Product struct {
	SKU  string `yaml:"sku" validate:"required"`
	Name string `yaml:"name" validate:"required"`
}

// ProductLine selects aggregated rows by description or by SKU.
type ProductLine struct {
	Worksheet   string `yaml:"worksheet" validate:"required,max=100"`
	Description string `yaml:"description" validate:"required_without=SKU"`
	SKU         string `yaml:"sku" validate:"required_without=Description"`
}

type Catalog struct {
	Products     []Product     `yaml:"products" validate:"required,min=1,unique=SKU,dive"`
	ProductLines []ProductLine `yaml:"product_lines" validate:"unique=Worksheet,dive"`

	bySKU map[string]string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads path, or the default catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "read catalog").
			WithDetails(map[string]any{"path": path})
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "decode catalog")
	}
	if err := validate.Struct(&c); err != nil {
		return nil, formatValidationErrors(err)
	}

	c.bySKU = make(map[string]string, len(c.Products))
	for _, p := range c.Products {
		c.bySKU[strings.TrimSpace(p.SKU)] = strings.TrimSpace(p.Name)
	}
	return &c, nil
}

// ProductName returns the name registered for sku.
func (c *Catalog) ProductName(sku string) (string, bool) {
	if c == nil {
		return "", false
	}
	name, ok := c.bySKU[strings.TrimSpace(sku)]
	return name, ok
}

// Matches reports whether a row with sku and description belongs to the line.
// Descriptions compare case-insensitively because exports are not consistent
// about "4x" versus "4X".
func (l ProductLine) Matches(sku, description string) bool {
	if l.SKU != "" && strings.TrimSpace(sku) == l.SKU {
		return true
	}
	if l.Description != "" && strings.EqualFold(strings.TrimSpace(description), l.Description) {
		return true
	}
	return false
}

func formatValidationErrors(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Namespace()] = fmt.Sprintf("failed %q", fieldErr.Tag())
		}
		return pkgerrors.New(pkgerrors.CodeConfiguration, "catalog validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "catalog validation failed")
}
