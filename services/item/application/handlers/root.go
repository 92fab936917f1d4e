package handlers

import (
	"net/http"

	"github.com/ghuser/inventory/pkg/httpx"
)

const serviceGreeting = "Inventory Management Service"

// Root handles GET /.
//
//	@Summary	Service greeting
//	@Tags		meta
//	@Produce	json
//	@Success	200	{object}	MessageResponse
//	@Router		/ [get]
func Root(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, MessageResponse{Message: serviceGreeting})
}
