package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"storefront-payment/models"
	"storefront-payment/services/storefront"
	"storefront-payment/utils"
)

// AddressHandler relays the checkout page's shipping address actions to the
// storefront on behalf of the authenticated shopper.
type AddressHandler struct {
	client  *storefront.Client
	actions *storefront.AddressActions
	logger  *zap.Logger
}

func NewAddressHandler(client *storefront.Client, logger *zap.Logger) *AddressHandler {
	return &AddressHandler{
		client:  client,
		actions: storefront.NewAddressActions(client),
		logger:  logger,
	}
}

type addressRequest struct {
	Street          string `json:"street"`
	City            string `json:"city"`
	StateOrProvince string `json:"state_or_province"`
	PostalCode      string `json:"postal_code"`
}

func (a addressRequest) address() storefront.Address {
	return storefront.Address{
		Street:          a.Street,
		City:            a.City,
		StateOrProvince: a.StateOrProvince,
		PostalCode:      a.PostalCode,
	}
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (h *AddressHandler) respond(w http.ResponseWriter, res *storefront.AddressResult, err error) {
	if err != nil {
		h.logger.Warn("Storefront address call failed", zap.Error(err))
		utils.SendErrorResponse(w, http.StatusBadGateway, "Storefront unavailable")
		return
	}
	if !res.Success {
		utils.SendJSON(w, http.StatusBadRequest, models.APIResponse{
			Status:  "error",
			Message: res.Message,
			Data:    res.Errors,
		})
		return
	}
	utils.SendSuccessResponse(w, models.APIResponse{Status: "success", Message: res.Message})
}

func (h *AddressHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.client.WithToken(bearerToken(r)).CreateAddress(r.Context(), req.address())
	h.respond(w, res, err)
}

// Action runs edit, delete or cancel on one address.
func (h *AddressHandler) Action(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.Atoi(vars["id"])
	if err != nil || id <= 0 {
		utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid address id")
		return
	}

	var req addressRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	res, err := h.actions.Dispatch(r.Context(), vars["action"], storefront.AddressRequest{
		ID:      id,
		Token:   bearerToken(r),
		Address: req.address(),
	})
	if errors.Is(err, storefront.ErrUnknownAction) {
		utils.SendErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	h.respond(w, res, err)
}
