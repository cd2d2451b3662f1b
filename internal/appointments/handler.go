package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/careplus-reminders/pkg/logging"
)

// Handler serves the dashboard's appointment and stats endpoints.
type Handler struct {
	repo   Repository
	logger *logging.Logger
	now    func() time.Time
}

func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger, now: time.Now}
}

// Routes mounts the handler under a chi router.
//
//	GET   /appointments
//	POST  /appointments
//	GET   /appointments/{id}
//	PATCH /appointments/{id}/status
//	GET   /dashboard/stats
func (h *Handler) Routes(r chi.Router) {
	r.Get("/appointments", h.List)
	r.Post("/appointments", h.Create)
	r.Get("/appointments/{id}", h.Get)
	r.Patch("/appointments/{id}/status", h.UpdateStatus)
	r.Get("/dashboard/stats", h.Stats)
}

type listResponse struct {
	Appointments []*Appointment `json:"appointments"`
	Total        int            `json:"total"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}
	if items == nil {
		items = []*Appointment{}
	}
	writeJSON(w, http.StatusOK, listResponse{Appointments: items, Total: len(items)})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeRepoError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode appointment", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	appt, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		h.writeRepoError(w, "create", err)
		return
	}
	h.logger.Info("appointment scheduled", "appointment_id", appt.ID, "date", appt.AppointmentDate)
	writeJSON(w, http.StatusCreated, appt)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	appt, err := h.repo.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeRepoError(w, "update status", err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context(), h.now())
	if err != nil {
		h.logger.Error("failed to compute dashboard stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeRepoError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrMissingContact), errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrInvalidTime), errors.Is(err, ErrInvalidType), errors.Is(err, ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("appointment "+op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
