package handlers

import (
	"net/http"

	"github.com/ghuser/inventory/pkg/errhttp"
	"github.com/ghuser/inventory/pkg/httpx"
	pkgvalidator "github.com/ghuser/inventory/pkg/validator"
	appsvcs "github.com/ghuser/inventory/services/item/application/services"
)

const detailCreateProduced = "Item creation event produced"

// CreateItemRequest is the request body for POST /items.
type CreateItemRequest struct {
	Name        string `json:"name"        validate:"required,min=1,max=255" example:"Widget"`
	Description string `json:"description" example:"A small widget"`
} // @name CreateItemRequest

// CreateItemHandler handles POST /items requests.
type CreateItemHandler struct {
	svc          *appsvcs.Services
	isProduction bool
}

// NewCreateItemHandler returns a CreateItemHandler backed by the given services.
func NewCreateItemHandler(svc *appsvcs.Services, isProduction bool) *CreateItemHandler {
	return &CreateItemHandler{svc: svc, isProduction: isProduction}
}

// Execute publishes an item creation event. The item becomes readable once the
// consumer has applied it.
//
//	@Summary		Create item
//	@Description	Accepts an item for asynchronous creation
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateItemRequest	true	"Item creation request"
//	@Success		202		{object}	DetailResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/items [post]
func (h *CreateItemHandler) Execute(w http.ResponseWriter, r *http.Request) {
	req, ok := pkgvalidator.ValidateRequest[CreateItemRequest](w, r)
	if !ok {
		return
	}

	err := h.svc.Writes.SubmitCreate(r.Context(), appsvcs.CreateItemInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		errhttp.WriteError(w, err, h.isProduction)
		return
	}
	httpx.Detail(w, http.StatusAccepted, detailCreateProduced)
}
