package transport

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/questmaster/internal/hitl/domain"
	"github.com/louisbranch/questmaster/internal/hitl/review"
	"github.com/louisbranch/questmaster/internal/hitl/storage"
	apperrors "github.com/louisbranch/questmaster/internal/platform/errors"
)

// OperatorHandler exposes the review workflow over HTTP. Every route
// requires a valid operator grant.
type OperatorHandler struct {
	service *review.Service
	grants  OperatorGrantConfig
}

// NewOperatorHandler builds the operator API.
func NewOperatorHandler(service *review.Service, grants OperatorGrantConfig) (*OperatorHandler, error) {
	if service == nil {
		return nil, errors.New("review service is required")
	}
	return &OperatorHandler{service: service, grants: grants}, nil
}

// Register installs the operator routes on the mux.
func (h *OperatorHandler) Register(mux *http.ServeMux) {
	mux.Handle("GET /operator/alerts", h.requireOperator(h.listAlerts))
	mux.Handle("POST /operator/alerts/{id}/ack", h.requireOperator(h.acknowledge))
	mux.Handle("POST /operator/alerts/{id}/response", h.requireOperator(h.respond))
	mux.Handle("POST /operator/alerts/{id}/approve", h.requireOperator(h.approve))
}

type operatorFunc func(w http.ResponseWriter, r *http.Request, claims OperatorClaims)

// requireOperator validates the bearer grant before invoking next.
func (h *OperatorHandler) requireOperator(next operatorFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		grant, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, apperrors.New(apperrors.CodeOperatorGrantInvalid, "bearer grant is required"))
			return
		}
		claims, err := ValidateOperatorGrant(grant, h.grants)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, claims)
	})
}

// alertView is the API shape of an alert.
type alertView struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	PlayerID  string `json:"player_id,omitempty"`
	Source    string `json:"source"`
	Reason    string `json:"reason"`
	Severity  string `json:"severity"`
	Excerpt   string `json:"excerpt,omitempty"`
	Note      string `json:"note,omitempty"`
	Status    string `json:"status"`
	Response  string `json:"response,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toAlertView(alert domain.Alert) alertView {
	return alertView{
		ID:        alert.ID,
		SessionID: alert.SessionID,
		PlayerID:  alert.PlayerID,
		Source:    string(alert.Source),
		Reason:    string(alert.Reason),
		Severity:  string(alert.Severity),
		Excerpt:   alert.Excerpt,
		Note:      alert.Note,
		Status:    string(alert.Status),
		Response:  alert.Response,
		CreatedAt: alert.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: alert.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *OperatorHandler) listAlerts(w http.ResponseWriter, r *http.Request, _ OperatorClaims) {
	alerts, err := h.service.ListActiveAlerts(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]alertView, 0, len(alerts))
	for _, alert := range alerts {
		views = append(views, toAlertView(alert))
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": views})
}

func (h *OperatorHandler) acknowledge(w http.ResponseWriter, r *http.Request, claims OperatorClaims) {
	alert, err := h.service.AcknowledgeAlert(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("operator %s acknowledged alert %s", claims.OperatorID, alert.ID)
	writeJSON(w, http.StatusOK, toAlertView(alert))
}

type responseRequest struct {
	Text string `json:"text"`
}

func (h *OperatorHandler) respond(w http.ResponseWriter, r *http.Request, claims OperatorClaims) {
	var req responseRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	alert, err := h.service.SubmitResponse(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("operator %s responded to alert %s", claims.OperatorID, alert.ID)
	writeJSON(w, http.StatusOK, toAlertView(alert))
}

func (h *OperatorHandler) approve(w http.ResponseWriter, r *http.Request, claims OperatorClaims) {
	alert, err := h.service.ApproveDraft(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("operator %s approved draft for alert %s", claims.OperatorID, alert.ID)
	writeJSON(w, http.StatusOK, toAlertView(alert))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("operator api: encode response: %v", err)
	}
}

// writeError maps service errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var appErr *apperrors.Error
	switch {
	case errors.As(err, &appErr):
		status = appErr.Code.HTTPStatus()
		message = appErr.Message
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
		message = "alert not found"
	case errors.Is(err, domain.ErrAlertNotOpen):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, review.ErrEmptyResponse):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, review.ErrNoPendingDraft), errors.Is(err, review.ErrSessionNotHeld):
		status = http.StatusConflict
		message = err.Error()
	default:
		log.Printf("operator api: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		log.Printf("operator api: encode error: %v", err)
	}
}
