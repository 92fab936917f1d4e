package models

// Item is the core aggregate for this bounded context. ID is assigned by the
// store when the create event is applied and never changes afterwards.
type Item struct {
	ID          int64
	Name        ItemName
	Description string
}

// NewItem constructs an Item that has not been stored yet (ID is zero).
func NewItem(name ItemName, description string) *Item {
	return &Item{Name: name, Description: description}
}

// IsStored reports whether the store has assigned an ID.
func (i *Item) IsStored() bool {
	return i.ID > 0
}
