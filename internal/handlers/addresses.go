package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shipnest/apiserver/internal/services"
	"github.com/shipnest/apiserver/internal/validate"
	"github.com/shipnest/apiserver/types"
	"go.uber.org/zap"
)

var addressMessages = map[string]string{
	"mobile":   "Mobile is Required",
	"flat":     "flat is Required",
	"landmark": "Landmark is Required",
	"street":   "Street is Required",
	"city":     "City is Required",
	"state":    "State is Required",
	"country":  "Country is Required",
	"pinCode":  "PinCode is Required",
}

// AddressHandler provides HTTP handlers for a user's addresses.
type AddressHandler struct {
	addressService *services.AddressService
	logger         *zap.Logger
}

func NewAddressHandler(addressService *services.AddressService, logger *zap.Logger) *AddressHandler {
	return &AddressHandler{addressService: addressService, logger: logger}
}

// AddressRouter registers address routes. Bodies are validated before the
// caller is authenticated.
func AddressRouter(r chi.Router, handler *AddressHandler, authMiddleware func(http.Handler) http.Handler) {
	withBody := r.With(validate.Body[AddressRequest](SendValidationErrors, addressMessages), authMiddleware)
	withBody.Post("/new", handler.Create)
	withBody.Put("/{addressId}", handler.Update)

	authed := r.With(authMiddleware)
	authed.Get("/me", handler.List)
	authed.Delete("/{addressId}", handler.Delete)
}

type AddressRequest struct {
	Mobile   text `json:"mobile" validate:"required,notblank"`
	Flat     text `json:"flat" validate:"required,notblank"`
	Landmark text `json:"landmark" validate:"required,notblank"`
	Street   text `json:"street" validate:"required,notblank"`
	City     text `json:"city" validate:"required,notblank"`
	State    text `json:"state" validate:"required,notblank"`
	Country  text `json:"country" validate:"required,notblank"`
	PinCode  text `json:"pinCode" validate:"required,notblank"`
}

func (req AddressRequest) input() types.AddressInput {
	return types.AddressInput{
		Mobile:   string(req.Mobile),
		Flat:     string(req.Flat),
		Landmark: string(req.Landmark),
		Street:   string(req.Street),
		City:     string(req.City),
		State:    string(req.State),
		Country:  string(req.Country),
		PinCode:  string(req.PinCode),
	}
}

func (h *AddressHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req AddressRequest
	if err := decodeJSON(r, &req); err != nil {
		sendErrors(w, http.StatusBadRequest, err.Error(), "Invalid request body")
		return
	}

	created, err := h.addressService.Create(r.Context(), user.ID, req.input())
	if err != nil {
		h.internalError(w, "create address", err)
		return
	}

	sendData(w, http.StatusOK, created, "Address is Created")
}

func (h *AddressHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req AddressRequest
	if err := decodeJSON(r, &req); err != nil {
		sendErrors(w, http.StatusBadRequest, err.Error(), "Invalid request body")
		return
	}

	updated, err := h.addressService.Update(r.Context(), user.ID, chi.URLParam(r, "addressId"), req.input())
	if err != nil {
		h.addressError(w, "update address", err)
		return
	}

	sendData(w, http.StatusOK, updated, "Address is Updated")
}

// List returns the caller's addresses, oldest first.
func (h *AddressHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	addresses, err := h.addressService.ListByUser(r.Context(), user.ID)
	if err != nil {
		h.internalError(w, "list addresses", err)
		return
	}

	sendData(w, http.StatusOK, addresses, "")
}

func (h *AddressHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	if err := h.addressService.Delete(r.Context(), user.ID, chi.URLParam(r, "addressId")); err != nil {
		h.addressError(w, "delete address", err)
		return
	}

	sendData(w, http.StatusOK, nil, "Address is Deleted")
}

func (h *AddressHandler) currentUser(w http.ResponseWriter, r *http.Request) (types.User, bool) {
	user, err := userFromContext(r.Context())
	if err != nil {
		sendErrors(w, http.StatusUnauthorized, nil, "Invalid Token")
		return types.User{}, false
	}
	return user, true
}

func (h *AddressHandler) addressError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, services.ErrAddressNotFound) {
		sendErrors(w, http.StatusNotFound, nil, "Address is not found")
		return
	}
	h.internalError(w, op, err)
}

func (h *AddressHandler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, zap.Error(err))
	sendErrors(w, http.StatusInternalServerError, err.Error(), "Internal Server Error")
}
