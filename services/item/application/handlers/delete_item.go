package handlers

import (
	"net/http"

	"github.com/ghuser/inventory/pkg/errhttp"
	"github.com/ghuser/inventory/pkg/httpx"
	pkgvalidator "github.com/ghuser/inventory/pkg/validator"
	appsvcs "github.com/ghuser/inventory/services/item/application/services"
)

const detailDeleted = "Item deleted"

// DeleteItemHandler handles DELETE /items/{id} requests.
type DeleteItemHandler struct {
	svc          *appsvcs.Services
	isProduction bool
}

// NewDeleteItemHandler returns a DeleteItemHandler backed by the given services.
func NewDeleteItemHandler(svc *appsvcs.Services, isProduction bool) *DeleteItemHandler {
	return &DeleteItemHandler{svc: svc, isProduction: isProduction}
}

// Execute deletes an item synchronously.
//
//	@Summary	Delete item
//	@Tags		items
//	@Produce	json
//	@Param		id	path		int	true	"Item ID"
//	@Success	200	{object}	DetailResponse
//	@Failure	400	{object}	ErrorResponse
//	@Failure	404	{object}	DetailResponse
//	@Router		/items/{id} [delete]
func (h *DeleteItemHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := pkgvalidator.PathInt64(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.Item.Delete(r.Context(), id); err != nil {
		errhttp.WriteError(w, err, h.isProduction)
		return
	}
	httpx.Detail(w, http.StatusOK, detailDeleted)
}
