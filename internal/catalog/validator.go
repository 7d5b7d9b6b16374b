package catalog

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *Validator) Validate(file *File) error {
	if err := v.validate.Struct(file.Shop); err != nil {
		return fmt.Errorf("shop validation failed: %w", err)
	}

	if len(file.Products) == 0 {
		return fmt.Errorf("at least one product is required")
	}

	ids := make(map[string]bool)
	codes := make(map[string]bool)
	for i, product := range file.Products {
		if err := v.validate.Struct(product); err != nil {
			return fmt.Errorf("product %d validation failed: %w", i, err)
		}
		if strings.TrimSpace(product.ID) != product.ID {
			return fmt.Errorf("product %d id must not have surrounding spaces", i)
		}

		if ids[product.ID] {
			return fmt.Errorf("duplicate product id: %s", product.ID)
		}
		ids[product.ID] = true

		if product.Code == "" {
			continue
		}
		if codes[product.Code] {
			return fmt.Errorf("duplicate product code: %s", product.Code)
		}
		codes[product.Code] = true
	}

	return nil
}
