package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"bikeshare/internal/reservations/service"
	apperrors "bikeshare/pkg/errors"
	httputil "bikeshare/pkg/http"
	"bikeshare/pkg/logger"
	"bikeshare/pkg/model"

	"github.com/julienschmidt/httprouter"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
)

type ReservationHandler struct {
	service service.ReservationService
	log     *logger.Logger
}

func NewReservationHandler(service service.ReservationService, log *logger.Logger) *ReservationHandler {
	return &ReservationHandler{
		service: service,
		log:     log,
	}
}

func (h *ReservationHandler) Submit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, ok := h.requester(w, r, "Submit")
	if !ok {
		return
	}

	var input model.ReservationInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, "Submit", apperrors.InvalidInput("Invalid request body"))
		return
	}
	input.UserID = userID
	input.UserEmail = strings.TrimSpace(r.Header.Get(HeaderUserEmail))

	receipt, err := h.service.Submit(r.Context(), &input)
	if err != nil {
		h.writeError(w, "Submit", err)
		return
	}

	if err := httputil.WriteAccepted(w, receipt); err != nil {
		h.log.Error("failed to write accepted response", "handler", "Submit", "operation", "WriteAccepted", "error", err)
	}
}

func (h *ReservationHandler) History(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, ok := h.requester(w, r, "History")
	if !ok {
		return
	}

	status := model.BookingStatus(r.URL.Query().Get("status"))
	bookings, err := h.service.History(r.Context(), userID, status)
	if err != nil {
		h.writeError(w, "History", err)
		return
	}

	if err := httputil.WriteSuccess(w, bookings); err != nil {
		h.log.Error("failed to write success response", "handler", "History", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Modify(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, ok := h.requester(w, r, "Modify")
	if !ok {
		return
	}

	var input model.ModificationInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, "Modify", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.service.Modify(r.Context(), userID, ps.ByName("ref"), &input)
	if err != nil {
		h.writeError(w, "Modify", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Modify", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, ok := h.requester(w, r, "Cancel")
	if !ok {
		return
	}

	booking, err := h.service.Cancel(r.Context(), userID, ps.ByName("ref"))
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) AccessCode(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, ok := h.requester(w, r, "AccessCode")
	if !ok {
		return
	}

	view, err := h.service.GetAccessCode(r.Context(), userID, ps.ByName("ref"))
	if err != nil {
		h.writeError(w, "AccessCode", err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	if err := httputil.WriteSuccess(w, view); err != nil {
		h.log.Error("failed to write success response", "handler", "AccessCode", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	bookings, total, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *ReservationHandler) AvailableUnits(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	units, err := h.service.AvailableUnits(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		h.writeError(w, "AvailableUnits", err)
		return
	}

	if err := httputil.WriteSuccess(w, units); err != nil {
		h.log.Error("failed to write success response", "handler", "AvailableUnits", "operation", "WriteSuccess", "error", err)
	}
}

// requester reads the caller identity set by the gateway and answers 401
// when it is missing.
func (h *ReservationHandler) requester(w http.ResponseWriter, r *http.Request, handler string) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		h.writeError(w, handler, apperrors.Unauthorized("Missing "+HeaderUserID+" header"))
		return "", false
	}
	return userID, true
}

func (h *ReservationHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *ReservationHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/reservations", h.Submit)
	router.GET("/api/v1/reservations", h.History)
	router.PATCH("/api/v1/reservations/:ref", h.Modify)
	router.DELETE("/api/v1/reservations/:ref", h.Cancel)
	router.GET("/api/v1/reservations/:ref/access-code", h.AccessCode)
	router.GET("/api/v1/admin/reservations", h.GetAll)
	router.GET("/api/v1/units/available", h.AvailableUnits)
}
