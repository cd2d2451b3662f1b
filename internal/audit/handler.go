package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/wolfman30/careplus-reminders/pkg/logging"
)

// Handler serves GET /api/logs?limit=&action=.
type Handler struct {
	reader Reader
	logger *logging.Logger
}

func NewHandler(reader Reader, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{reader: reader, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var filter Filter
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}
	for _, v := range r.URL.Query()["action"] {
		filter.Actions = append(filter.Actions, strings.Split(v, ",")...)
	}

	entries, err := h.reader.List(r.Context(), filter)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		h.logger.Error("failed to list audit entries", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "failed to list logs"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"logs": entries})
}
