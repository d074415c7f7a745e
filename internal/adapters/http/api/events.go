package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/dashboard-api/internal/domain/model"
)

// eventRequest mirrors the OpenAPI schema for POST /events.
type eventRequest struct {
	EventID      string `json:"event_id"`
	DeploymentID int64  `json:"deployment_id"`
	UserID       *int64 `json:"user_id"`
	EventType    string `json:"event_type"`
	UserName     string `json:"user_name"`
	UserEmail    string `json:"user_email"`
	AuthMethod   string `json:"auth_method"`
	IPAddress    string `json:"ip_address"`
	Timestamp    string `json:"timestamp"`
}

func (e eventRequest) toModel() (model.UserEvent, error) { //nolint:gocritic // request values are small
	typ, err := model.ParseEventType(e.EventType)
	if err != nil {
		return model.UserEvent{}, err
	}
	out := model.UserEvent{
		EventID:      strings.TrimSpace(e.EventID),
		DeploymentID: e.DeploymentID,
		UserID:       e.UserID,
		Type:         typ,
		UserName:     strings.TrimSpace(e.UserName),
		UserEmail:    strings.TrimSpace(e.UserEmail),
		AuthMethod:   strings.ToLower(strings.TrimSpace(e.AuthMethod)),
		IPAddress:    strings.TrimSpace(e.IPAddress),
	}
	if ts := strings.TrimSpace(e.Timestamp); ts != "" {
		out.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return model.UserEvent{}, errors.New("invalid timestamp; must be RFC3339")
		}
	}
	return out, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// EventsHandler handles event ingestion.
type EventsHandler struct {
	deps Dependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"

	var req eventRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	e, err := req.toModel()
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.Submit(r.Context(), e)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: res.EventID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: res.EventID})
}

// decodeJSON reads exactly one JSON object with known fields.
func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return WrapKind("api.decode", ErrBadRequest, errors.New("empty body"))
		}
		return WrapKind("api.decode", ErrBadRequest, fmt.Errorf("malformed JSON: %w", err))
	}
	if dec.More() {
		return WrapKind("api.decode", ErrBadRequest, errors.New("body must contain a single JSON object"))
	}
	return nil
}
