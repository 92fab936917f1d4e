// Package services contains stateless domain services for the item bounded context.
// Domain services enforce business rules that operate purely on domain types.
package services

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ghuser/inventory/services/item/domain"
	"github.com/ghuser/inventory/services/item/domain/models"
)

// ValidateName enforces business rules for ItemName beyond the structural
// constraints enforced by the ItemName constructor (length 1–255).
//
// Business rules:
//   - No leading or trailing whitespace
//   - No control characters (Unicode category Cc)
//   - No consecutive spaces
func ValidateName(name models.ItemName) error {
	s := name.String()

	if _, err := models.NewItemName(s); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidItemName, err)
	}

	if s != strings.TrimSpace(s) {
		return fmt.Errorf("%w: must not have leading or trailing whitespace", domain.ErrInvalidItemName)
	}

	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: must not contain control characters", domain.ErrInvalidItemName)
		}
	}

	if strings.Contains(s, "  ") {
		return fmt.Errorf("%w: must not contain consecutive spaces", domain.ErrInvalidItemName)
	}

	return nil
}

// ValidateItemForCreation checks an item built from a create event before it is inserted.
func ValidateItemForCreation(item *models.Item) error {
	if item == nil {
		return fmt.Errorf("item cannot be nil")
	}
	if item.IsStored() {
		return fmt.Errorf("item already has id %d", item.ID)
	}
	return ValidateName(item.Name)
}

// ValidatePatch rejects empty patches and patches that set an invalid name.
func ValidatePatch(patch models.ItemPatch) error {
	if patch.IsEmpty() {
		return domain.ErrEmptyUpdate
	}
	if patch.Name != nil {
		return ValidateName(*patch.Name)
	}
	return nil
}
