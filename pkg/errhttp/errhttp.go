// Package errhttp maps domain and broker sentinel errors to HTTP status codes.
// Add a case to Status for each new sentinel error.
package errhttp

import (
	"errors"
	"net/http"

	"github.com/ghuser/inventory/pkg/httpx"
	"github.com/ghuser/inventory/pkg/kafkax"
	itemdomain "github.com/ghuser/inventory/services/item/domain"
)

const msgItemNotFound = "Item not found"

// WriteError maps err to an HTTP status code and writes a JSON error response.
// Uses errors.Is() so wrapped sentinel errors are matched correctly.
// A missing item is answered with {"detail":"Item not found"}, the body clients
// of the items API already parse; everything else uses {"error": msg}.
// In production, 5xx messages are replaced with the status text.
func WriteError(w http.ResponseWriter, err error, isProduction bool) {
	status := Status(err)
	if status == http.StatusNotFound {
		httpx.Detail(w, status, msgItemNotFound)
		return
	}
	httpx.JSONError(w, status, httpx.SafeError(err, status, isProduction))
}

// Status returns the HTTP status for err. Unrecognized errors map to 500.
func Status(err error) int {
	switch {
	case errors.Is(err, itemdomain.ErrItemNotFound):
		return http.StatusNotFound // 404
	case errors.Is(err, itemdomain.ErrInvalidItemName),
		errors.Is(err, itemdomain.ErrEmptyUpdate):
		return http.StatusUnprocessableEntity // 422
	case errors.Is(err, kafkax.ErrBrokerUnavailable),
		errors.Is(err, kafkax.ErrNotInitialized):
		return http.StatusServiceUnavailable // 503
	default:
		// Includes kafkax.ErrBrokerSend: the write was not accepted.
		return http.StatusInternalServerError // 500
	}
}
