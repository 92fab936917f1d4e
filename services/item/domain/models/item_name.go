package models

import (
	"fmt"
	"unicode/utf8"
)

// ItemName is a validated item name of 1 to 255 characters (runes, not bytes).
type ItemName string

const (
	MinItemNameLength = 1
	MaxItemNameLength = 255
)

// NewItemName returns s as an ItemName, or an error if its length is out of range
// or it is not valid UTF-8.
func NewItemName(s string) (ItemName, error) {
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("item name must be valid UTF-8")
	}
	n := utf8.RuneCountInString(s)
	if n < MinItemNameLength {
		return "", fmt.Errorf("item name must be at least %d character", MinItemNameLength)
	}
	if n > MaxItemNameLength {
		return "", fmt.Errorf("item name must not exceed %d characters, got %d", MaxItemNameLength, n)
	}
	return ItemName(s), nil
}

func (n ItemName) String() string {
	return string(n)
}
