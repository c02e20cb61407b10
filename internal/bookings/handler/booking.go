package handler

import (
	"encoding/json"
	"net/http"

	"skyport/internal/bookings/orchestrator"
	"skyport/internal/bookings/service"
	apperrors "skyport/pkg/errors"
	httputil "skyport/pkg/http"
	"skyport/pkg/logger"
	"skyport/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

// Submit answers with the attempt's outcome. Every terminal state carries a
// body; the status tells the caller whether retrying can help.
func (h *BookingHandler) Submit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("Invalid request body"))
		return
	}

	outcome, err := h.service.Submit(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteStatus(w, outcomeStatus(outcome), outcome)
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	record, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, record)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	outcome, err := h.service.Cancel(r.Context(), ps.ByName("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if outcome.Result == orchestrator.RefundFailed {
		status = http.StatusBadGateway
	}
	httputil.WriteStatus(w, status, outcome)
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Submit)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.POST("/api/v1/bookings/id/:id/cancel", h.Cancel)
}

func outcomeStatus(out orchestrator.Outcome) int {
	switch out.State {
	case orchestrator.StateCommitted:
		if out.Resumed {
			return http.StatusOK
		}
		return http.StatusCreated
	case orchestrator.StateDeclined:
		return http.StatusPaymentRequired
	case orchestrator.StateCapacityUnavailable:
		return http.StatusConflict
	case orchestrator.StateIneligible, orchestrator.StateTrainingRequired:
		return http.StatusUnprocessableEntity
	}

	switch out.Reason {
	case orchestrator.ReasonProcessorUnavailable:
		return http.StatusServiceUnavailable
	case orchestrator.ReasonIdempotencyConflict, orchestrator.ReasonChargedNotBooked:
		return http.StatusConflict
	case orchestrator.ReasonChargedRefundPending:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
