package models

import "testing"

func ptr[T any](v T) *T { return &v }

func TestItemPatch_Apply(t *testing.T) {
	tests := []struct {
		name     string
		patch    ItemPatch
		wantName ItemName
		wantDesc string
	}{
		{"name only keeps description", ItemPatch{Name: ptr(ItemName("Widget2"))}, "Widget2", "A widget"},
		{"description only keeps name", ItemPatch{Description: ptr("Updated")}, "Widget", "Updated"},
		{"both fields", ItemPatch{Name: ptr(ItemName("W")), Description: ptr("D")}, "W", "D"},
		{"empty description is a value", ItemPatch{Description: ptr("")}, "Widget", ""},
		{"empty patch", ItemPatch{}, "Widget", "A widget"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &Item{ID: 1, Name: "Widget", Description: "A widget"}
			tt.patch.Apply(item)
			if item.Name != tt.wantName || item.Description != tt.wantDesc {
				t.Fatalf("got %+v, want name=%q description=%q", item, tt.wantName, tt.wantDesc)
			}
			if item.ID != 1 {
				t.Fatal("patch must not change ID")
			}
		})
	}
}

func TestItemPatch_ApplyIsIdempotent(t *testing.T) {
	patch := ItemPatch{Name: ptr(ItemName("Widget2"))}

	once := &Item{ID: 1, Name: "Widget", Description: "A widget"}
	patch.Apply(once)

	twice := &Item{ID: 1, Name: "Widget", Description: "A widget"}
	patch.Apply(twice)
	patch.Apply(twice)

	if *once != *twice {
		t.Fatalf("applying twice diverged: %+v vs %+v", once, twice)
	}
}

func TestItemPatch_IsEmpty(t *testing.T) {
	if !(ItemPatch{}).IsEmpty() {
		t.Error("zero patch must be empty")
	}
	if (ItemPatch{Description: ptr("")}).IsEmpty() {
		t.Error("patch with a set field must not be empty")
	}
}
