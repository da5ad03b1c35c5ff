// Package apperr maps domain errors onto the JSON error envelope and HTTP statuses.
package apperr

import (
	"errors"
	"net/http"

	"github.com/MikeMC777/inventario/internal/auth"
	"github.com/MikeMC777/inventario/internal/catalog"
	"github.com/MikeMC777/inventario/internal/inventory"
	"github.com/MikeMC777/inventario/internal/order"
	"github.com/MikeMC777/inventario/internal/user"
)

// ErrInvalidRequest marks a body or parameter that could not be decoded.
var ErrInvalidRequest = errors.New("invalid request")

const (
	CodeUnauthenticated   = "unauthenticated"
	CodeForbidden         = "forbidden"
	CodeInvalidRequest    = "invalid_request"
	CodeEmptyOrder        = "empty_order"
	CodeInvalidQuantity   = "invalid_quantity"
	CodeNotFound          = "not_found"
	CodeItemNotFound      = "item_not_found"
	CodeInsufficientStock = "insufficient_stock"
	CodeDuplicate         = "duplicate"
	CodeConflict          = "conflict"
	CodeTimeout           = "timeout"
	CodeInternal          = "internal"
)

// Error is the body of every non-2xx response.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`

	Status    int  `json:"-"`
	Retryable bool `json:"-"`
}

func (e *Error) Error() string { return e.Message }

type rule struct {
	target error
	status int
	code   string
}

// First match wins, so the more specific sentinels come first.
var rules = []rule{
	{order.ErrTimeout, http.StatusServiceUnavailable, CodeTimeout},
	{auth.ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthenticated},
	{auth.ErrBadCredentials, http.StatusUnauthorized, CodeUnauthenticated},
	{auth.ErrForbidden, http.StatusForbidden, CodeForbidden},

	{order.ErrEmptyOrder, http.StatusBadRequest, CodeEmptyOrder},
	{order.ErrInvalidQuantity, http.StatusBadRequest, CodeInvalidQuantity},
	{inventory.ErrInvalidQuantity, http.StatusBadRequest, CodeInvalidQuantity},
	{order.ErrInvalidPrice, http.StatusBadRequest, CodeInvalidRequest},
	{inventory.ErrInvalidPrice, http.StatusBadRequest, CodeInvalidRequest},
	{inventory.ErrInvalidItem, http.StatusBadRequest, CodeInvalidRequest},
	{inventory.ErrUnknownCategory, http.StatusBadRequest, CodeInvalidRequest},
	{catalog.ErrNameRequired, http.StatusBadRequest, CodeInvalidRequest},
	{auth.ErrUsernameMissing, http.StatusBadRequest, CodeInvalidRequest},
	{auth.ErrWeakPassword, http.StatusBadRequest, CodeInvalidRequest},
	{ErrInvalidRequest, http.StatusBadRequest, CodeInvalidRequest},

	{order.ErrItemNotFound, http.StatusNotFound, CodeItemNotFound},
	{order.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{inventory.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{catalog.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{user.ErrNotFound, http.StatusNotFound, CodeNotFound},

	{inventory.ErrInsufficientStock, http.StatusConflict, CodeInsufficientStock},
	{inventory.ErrDuplicateSKU, http.StatusConflict, CodeDuplicate},
	{catalog.ErrAlreadyExists, http.StatusConflict, CodeDuplicate},
	{user.ErrAlreadyExist, http.StatusConflict, CodeDuplicate},
	{inventory.ErrInUse, http.StatusConflict, CodeConflict},
	{catalog.ErrInUse, http.StatusConflict, CodeConflict},
	{inventory.ErrConflict, http.StatusConflict, CodeConflict},
}

// From classifies err. Anything it does not recognise becomes a 500 whose
// message does not leak the underlying error.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, order.ErrDebitFailed) {
		return &Error{Code: CodeInternal, Message: order.ErrDebitFailed.Error(), Status: http.StatusInternalServerError}
	}
	for _, r := range rules {
		if !errors.Is(err, r.target) {
			continue
		}
		out := &Error{Code: r.code, Message: err.Error(), Status: r.status}
		if r.code == CodeTimeout {
			out.Retryable = true
		}
		out.Details = details(err)
		return out
	}
	return &Error{Code: CodeInternal, Message: "internal error", Status: http.StatusInternalServerError}
}

func details(err error) map[string]any {
	d := map[string]any{}
	var le *order.LineError
	if errors.As(err, &le) {
		d["line"] = le.Line
	}
	var ise *inventory.InsufficientStockError
	if errors.As(err, &ise) {
		d["item_id"] = ise.ItemID
		d["available"] = ise.Available
		d["requested"] = ise.Requested
	}
	var inf *order.ItemNotFoundError
	if errors.As(err, &inf) {
		d["item_id"] = inf.ItemID
	}
	if len(d) == 0 {
		return nil
	}
	return d
}

// Invalid wraps a decoding failure as a 400.
func Invalid(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: msg, Status: http.StatusBadRequest}
}
