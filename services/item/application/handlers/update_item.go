package handlers

import (
	"net/http"

	"github.com/ghuser/inventory/pkg/errhttp"
	"github.com/ghuser/inventory/pkg/httpx"
	pkgvalidator "github.com/ghuser/inventory/pkg/validator"
	appsvcs "github.com/ghuser/inventory/services/item/application/services"
)

const detailUpdateProduced = "Item update event produced"

// UpdateItemRequest is the request body for PUT /items/{id}. Omitted fields
// are left unchanged.
type UpdateItemRequest struct {
	Name        *string `json:"name,omitempty"        validate:"omitempty,min=1,max=255" example:"Widget2"`
	Description *string `json:"description,omitempty" example:"A larger widget"`
} // @name UpdateItemRequest

// UpdateItemHandler handles PUT /items/{id} requests.
type UpdateItemHandler struct {
	svc          *appsvcs.Services
	isProduction bool
}

// NewUpdateItemHandler returns an UpdateItemHandler backed by the given services.
func NewUpdateItemHandler(svc *appsvcs.Services, isProduction bool) *UpdateItemHandler {
	return &UpdateItemHandler{svc: svc, isProduction: isProduction}
}

// Execute publishes an item update event. The item is not looked up; an
// update for an unknown id is dropped by the consumer.
//
//	@Summary		Update item
//	@Description	Accepts a partial update for asynchronous application
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"Item ID"
//	@Param			request	body		UpdateItemRequest	true	"Fields to change"
//	@Success		202		{object}	DetailResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/items/{id} [put]
func (h *UpdateItemHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := pkgvalidator.PathInt64(w, r, "id")
	if !ok {
		return
	}
	req, ok := pkgvalidator.ValidateRequest[UpdateItemRequest](w, r)
	if !ok {
		return
	}

	err := h.svc.Writes.SubmitUpdate(r.Context(), id, appsvcs.UpdateItemInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		errhttp.WriteError(w, err, h.isProduction)
		return
	}
	httpx.Detail(w, http.StatusAccepted, detailUpdateProduced)
}
