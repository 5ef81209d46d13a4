package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/anstrom/pathorama/internal/errors"
	"github.com/anstrom/pathorama/internal/host"
	"github.com/anstrom/pathorama/internal/logging"
)

// TargetRequest queues one target by URL.
type TargetRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// TargetResponse reports whether a target origin was new.
type TargetResponse struct {
	URL      string `json:"url"`
	Accepted bool   `json:"accepted"`
}

// RequestEvent is a host request observation, as delivered to OnRequest.
type RequestEvent struct {
	Context host.Context      `json:"context"`
	Request *host.HTTPRequest `json:"request,omitempty"`
}

// TargetHandler feeds targets into the scanner.
type TargetHandler struct {
	engine    Engine
	logger    *logging.Logger
	validator *validator.Validate
}

// NewTargetHandler creates a new target handler.
func NewTargetHandler(engine Engine, logger *logging.Logger) *TargetHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &TargetHandler{
		engine:    engine,
		logger:    logger.WithFields("handler", "targets"),
		validator: validator.New(),
	}
}

// AddTarget handles POST /targets. New origins answer 202, duplicates 200.
func (h *TargetHandler) AddTarget(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if err := parseJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("request validation failed: %w", err))
		return
	}

	accepted, err := h.engine.AddTargetURL(req.URL)
	if err != nil {
		writeError(w, r, statusForError(err), err)
		return
	}

	code := http.StatusOK
	if accepted {
		code = http.StatusAccepted
	}
	writeJSON(w, r, code, TargetResponse{URL: req.URL, Accepted: accepted})
}

// RequestEvent handles POST /events/request by forwarding the event to
// OnRequest. Scanning happens asynchronously; hits arrive over the sinks.
func (h *TargetHandler) RequestEvent(w http.ResponseWriter, r *http.Request) {
	var ev RequestEvent
	if err := parseJSON(w, r, &ev); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if ev.Context.URL == "" && ev.Context.Host == "" {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("context requires url or host"))
		return
	}
	if _, ok := h.engine.Status(); !ok {
		writeError(w, r, http.StatusServiceUnavailable, errors.ErrNotRunning("scanner plugin"))
		return
	}

	rows := h.engine.OnRequest(ev.Context, ev.Request)
	if rows == nil {
		rows = host.RowBatch{}
	}
	writeJSON(w, r, http.StatusAccepted, map[string]interface{}{"rows": rows})
}

func statusForError(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeTargetInvalid, errors.CodeValidation:
		return http.StatusBadRequest
	case errors.CodeNotRunning:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
