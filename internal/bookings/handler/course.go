package handler

import (
	"context"
	"net/http"

	"skyport/internal/bookings/service"
	httputil "skyport/pkg/http"
	"skyport/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type AvailabilityService interface {
	Availability(ctx context.Context, courseID string) (*service.Availability, error)
}

type CourseHandler struct {
	service AvailabilityService
	log     *logger.Logger
}

func NewCourseHandler(service AvailabilityService, log *logger.Logger) *CourseHandler {
	return &CourseHandler{
		service: service,
		log:     log,
	}
}

// Availability reports the seats left on a course. Holds past their expiry
// count as free even before the reaper marks them.
func (h *CourseHandler) Availability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	availability, err := h.service.Availability(r.Context(), ps.ByName("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, availability)
}

func (h *CourseHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/courses/:id/availability", h.Availability)
}
