package models

// ItemPatch is a partial update. Nil fields are left unchanged.
type ItemPatch struct {
	Name        *ItemName
	Description *string
}

// IsEmpty reports whether the patch changes nothing.
func (p ItemPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil
}

// Apply copies the set fields of p onto item. Applying the same patch twice
// leaves item in the same state as applying it once.
func (p ItemPatch) Apply(item *Item) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
}
