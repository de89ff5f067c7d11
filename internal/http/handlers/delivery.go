package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
)

// DeliveryHandler handles HTTP requests for delivery resources.
type DeliveryHandler struct {
	usecase dispatchUsecase
	logger  logx.Logger
}

// NewDeliveryHandler creates a new DeliveryHandler.
func NewDeliveryHandler(logger logx.Logger, uc dispatchUsecase) *DeliveryHandler {
	return &DeliveryHandler{usecase: uc, logger: logger}
}

func (h *DeliveryHandler) writeUsecaseError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "delivery not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(h.logger, w, r, http.StatusConflict, "invalid status transition")
	case errors.Is(err, apperr.ErrConflict):
		writeError(h.logger, w, r, http.StatusConflict, "conflict")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// Assign handles POST /deliveries/assign: trigger driver assignment for an
// order. Safe to call repeatedly; an already assigned order reports success.
func (h *DeliveryHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignDeliveryRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		writeError(h.logger, w, r, http.StatusBadRequest, "order_id is required")
		return
	}

	res, err := h.usecase.Assign(r.Context(), strings.TrimSpace(req.OrderID), 0)
	if err != nil {
		h.writeUsecaseError(w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, resultToResponse(res))
}

// Get handles GET /deliveries/{id}.
func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}

	d, err := h.usecase.Delivery(r.Context(), id)
	if err != nil {
		h.writeUsecaseError(w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, deliveryToResponse(d))
}

// GetByOrder handles GET /orders/{orderID}/delivery.
func (h *DeliveryHandler) GetByOrder(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid order id")
		return
	}

	d, err := h.usecase.DeliveryByOrder(r.Context(), orderID)
	if err != nil {
		h.writeUsecaseError(w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, deliveryToResponse(d))
}

// Accept handles POST /deliveries/{id}/accept.
func (h *DeliveryHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.driverTransition(w, r, h.usecase.Accept)
}

// PickedUp handles POST /deliveries/{id}/picked-up.
func (h *DeliveryHandler) PickedUp(w http.ResponseWriter, r *http.Request) {
	h.driverTransition(w, r, h.usecase.MarkPickedUp)
}

// EnRoute handles POST /deliveries/{id}/en-route.
func (h *DeliveryHandler) EnRoute(w http.ResponseWriter, r *http.Request) {
	h.driverTransition(w, r, h.usecase.MarkEnRoute)
}

// Arrived handles POST /deliveries/{id}/arrived.
func (h *DeliveryHandler) Arrived(w http.ResponseWriter, r *http.Request) {
	h.driverTransition(w, r, h.usecase.MarkArrived)
}

type transitionFunc func(ctx context.Context, deliveryID, driverID int64) (*domain.Delivery, error)

func (h *DeliveryHandler) driverTransition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req driverActionRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if req.DriverID <= 0 {
		writeError(h.logger, w, r, http.StatusBadRequest, "driver_id is required")
		return
	}

	d, err := fn(r.Context(), id, req.DriverID)
	if err != nil {
		h.writeUsecaseError(w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, deliveryToResponse(d))
}

// Reject handles POST /deliveries/{id}/reject: the driver declines the
// assignment and the delivery is re-matched immediately.
func (h *DeliveryHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req driverActionRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if req.DriverID <= 0 {
		writeError(h.logger, w, r, http.StatusBadRequest, "driver_id is required")
		return
	}

	res, err := h.usecase.Reject(r.Context(), id, req.DriverID, req.Reason)
	if err != nil {
		h.writeUsecaseError(w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, resultToResponse(res))
}

// Delivered handles POST /deliveries/{id}/delivered.
func (h *DeliveryHandler) Delivered(w http.ResponseWriter, r *http.Request) {
	h.closingTransition(w, r, h.usecase.MarkDelivered)
}

// Failed handles POST /deliveries/{id}/failed.
func (h *DeliveryHandler) Failed(w http.ResponseWriter, r *http.Request) {
	h.closingTransition(w, r, h.usecase.MarkFailed)
}

type closingFunc func(ctx context.Context, deliveryID, driverID int64, notes string) (*domain.Delivery, error)

func (h *DeliveryHandler) closingTransition(w http.ResponseWriter, r *http.Request, fn closingFunc) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req driverActionRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if req.DriverID <= 0 {
		writeError(h.logger, w, r, http.StatusBadRequest, "driver_id is required")
		return
	}

	d, err := fn(r.Context(), id, req.DriverID, req.Notes)
	if err != nil {
		h.writeUsecaseError(w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, deliveryToResponse(d))
}

// Cancel handles POST /deliveries/{id}/cancel.
func (h *DeliveryHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req cancelDeliveryRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeError(h.logger, w, r, http.StatusBadRequest, "reason is required")
		return
	}

	d, err := h.usecase.Cancel(r.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeUsecaseError(w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, deliveryToResponse(d))
}

// ManualAssign handles POST /deliveries/{id}/manual-assign: an operator
// forces a specific driver onto an escalated delivery.
func (h *DeliveryHandler) ManualAssign(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req manualAssignRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if req.DriverID <= 0 {
		writeError(h.logger, w, r, http.StatusBadRequest, "driver_id is required")
		return
	}

	d, err := h.usecase.ManualAssign(r.Context(), id, req.DriverID)
	if err != nil {
		h.writeUsecaseError(w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, deliveryToResponse(d))
}
