package handlers

import (
	"github.com/ghuser/inventory/services/item/domain/models"
)

// ItemResponse is the JSON shape of a stored item.
type ItemResponse struct {
	ID          int64  `json:"id"          example:"1"`
	Name        string `json:"name"        example:"Widget"`
	Description string `json:"description" example:"A small widget"`
} // @name ItemResponse

// DetailResponse acknowledges an accepted or completed write.
type DetailResponse struct {
	Detail string `json:"detail" example:"Item creation event produced"`
} // @name DetailResponse

// MessageResponse is the service greeting.
type MessageResponse struct {
	Message string `json:"message" example:"Inventory Management Service"`
} // @name MessageResponse

// ErrorResponse is returned on all error responses.
type ErrorResponse struct {
	Error string `json:"error" example:"Item not found"`
} // @name ErrorResponse

func toItemResponse(item *models.Item) ItemResponse {
	return ItemResponse{ID: item.ID, Name: item.Name.String(), Description: item.Description}
}
