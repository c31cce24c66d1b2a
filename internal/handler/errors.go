package handler

import (
	"errors"

	"liverymarket/internal/catalog"
	"liverymarket/internal/service"
	"liverymarket/internal/upstream"
	"liverymarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type errorMapping struct {
	err     error
	code    int
	message string
}

// Checked in order. Partial injections come first: they also match
// ErrTimeout or ErrNetwork through the wrapped cause.
var errorMappings = []errorMapping{
	{upstream.ErrCustomizeFailed, response.CodePartialInjection,
		"The livery was added to your game account but could not be customized. No credit was taken; contact an admin before retrying."},
	{upstream.ErrGrantFailed, response.CodeGrantFailed, "The game server refused the livery. No credit was taken."},
	{upstream.ErrMissingInstanceID, response.CodeMissingInstanceID,
		"The game server did not confirm the new item. No credit was taken; check your inventory before retrying."},
	{upstream.ErrTimeout, response.CodeUpstreamTimeout, "The game server did not answer in time. No credit was taken; please retry."},
	{upstream.ErrNetwork, response.CodeUpstreamNetwork, "The game server could not be reached. No credit was taken; please retry."},

	{service.ErrAccountNotFound, response.CodeAccountNotFound, "Account not found."},
	{service.ErrInvalidCredential, response.CodeInvalidCredential, "The token is invalid or the game server is unreachable."},
	{service.ErrNotLinked, response.CodeNotLinked, "Link your game account first."},
	{service.ErrInsufficientCredit, response.CodeInsufficientCredit, "Not enough credit. Top up to continue."},
	{service.ErrItemNotFound, response.CodeItemNotFound, "Livery not found."},
	{service.ErrInjectionInProgress, response.CodeInjectionBusy, "An injection is already running for your account."},
	{service.ErrProductNotFound, response.CodeProductNotFound, "Product not found."},
	{service.ErrTransactionNotFound, response.CodeTransactionNotFound, "Transaction not found."},
	{service.ErrAlreadyResolved, response.CodeAlreadyResolved, "Transaction was already processed."},
	{service.ErrProofRequired, response.CodeProofRequired, "Payment proof is required."},
	{catalog.ErrNotFound, response.CodeItemNotFound, "Livery not found."},
	{catalog.ErrUnavailable, response.CodeCatalogUnavailable, "The livery catalog is unavailable right now."},
}

// writeError maps err to a business code. Unknown errors are logged and
// reported without their text, which may carry upstream detail.
func (h *Handler) writeError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			response.BusinessError(c, m.code, m.message)
			return
		}
	}
	h.logger.WithFields(logrus.Fields{
		"request_id": c.GetString(requestIDKey),
		"path":       c.FullPath(),
	}).WithError(err).Error("request failed")
	response.ServerError(c, "internal error")
}
