package handlers

import (
	"errors"
	"net/http"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/logx"
)

// DriverHandler handles HTTP requests for driver presence and location.
type DriverHandler struct {
	usecase driverUsecase
	logger  logx.Logger
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(logger logx.Logger, uc driverUsecase) *DriverHandler {
	return &DriverHandler{usecase: uc, logger: logger}
}

func (h *DriverHandler) writeUsecaseError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "driver not found")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// Availability handles GET /drivers/{id}/availability.
func (h *DriverHandler) Availability(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}

	a, err := h.usecase.GetAvailability(r.Context(), id)
	if err != nil {
		h.writeUsecaseError(w, r, err)
		return
	}
	if a == nil {
		writeError(h.logger, w, r, http.StatusNotFound, "driver not found")
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, availabilityToResponse(a))
}

// Online handles POST /drivers/{id}/online: the driver starts a session and
// becomes eligible for assignments.
func (h *DriverHandler) Online(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.usecase.GoOnline(r.Context(), id); err != nil {
		h.writeUsecaseError(w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, map[string]string{"status": "online"})
}

// Offline handles POST /drivers/{id}/offline.
func (h *DriverHandler) Offline(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.usecase.GoOffline(r.Context(), id); err != nil {
		h.writeUsecaseError(w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, map[string]string{"status": "offline"})
}

// Location handles PUT /drivers/{id}/location.
func (h *DriverHandler) Location(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req updateLocationRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		writeError(h.logger, w, r, http.StatusBadRequest, "coordinates out of range")
		return
	}

	if err := h.usecase.UpdateLocation(r.Context(), id, req.Latitude, req.Longitude); err != nil {
		h.writeUsecaseError(w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, map[string]string{"status": "updated"})
}
