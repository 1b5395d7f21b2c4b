package notify

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"patternpals/internal/common"
)

// Handler exposes the engine over HTTP.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register wires the engine's routes onto an API subrouter.
func (h *Handler) Register(api *mux.Router) {
	api.HandleFunc("/health", h.Health).Methods("GET")
	api.HandleFunc("/metrics", h.Metrics).Methods("GET")

	notifications := api.PathPrefix("/notifications").Subrouter()
	notifications.HandleFunc("/submit", h.Submit).Methods("POST")
	notifications.HandleFunc("/broadcast", h.Broadcast).Methods("POST")
	notifications.HandleFunc("/{notificationID}/attempts", h.Attempts).Methods("GET")
	notifications.HandleFunc("/attempts/{attemptID}/delivered", h.ConfirmDelivered).Methods("POST")

	devices := api.PathPrefix("/devices").Subrouter()
	devices.HandleFunc("/register", h.RegisterDevice).Methods("POST")
	devices.HandleFunc("/deactivate", h.DeactivateDevice).Methods("POST")

	critical := api.PathPrefix("/critical").Subrouter()
	critical.HandleFunc("/{userID}/drain", h.DrainCritical).Methods("POST")
	critical.HandleFunc("/{userID}/ack", h.AckCritical).Methods("POST")
}

type submitResponse struct {
	Accepted       bool   `json:"accepted"`
	NotificationID string `json:"notification_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req common.NotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, submitResponse{Error: "invalid request body"})
		return
	}

	accepted, err := h.service.Submit(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, common.ErrValidation) {
			status = http.StatusBadRequest
		}
		log.Printf("Submit failed for %q: %v", req.ID, err)
		writeJSON(w, status, submitResponse{Accepted: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{Accepted: accepted, NotificationID: req.ID})
}

type broadcastRequest struct {
	Request    common.NotificationRequest `json:"request"`
	Recipients []string                   `json:"recipients"`
}

type broadcastResponse struct {
	Accepted int    `json:"accepted"`
	Total    int    `json:"total"`
	Error    string `json:"error,omitempty"`
}

func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, broadcastResponse{Error: "invalid request body"})
		return
	}
	if len(req.Recipients) == 0 {
		writeJSON(w, http.StatusBadRequest, broadcastResponse{Error: "recipients are required"})
		return
	}

	accepted, err := h.service.SubmitBroadcast(r.Context(), req.Request, req.Recipients)
	resp := broadcastResponse{Accepted: accepted, Total: len(req.Recipients)}
	if err != nil {
		log.Printf("Broadcast partially failed: %v", err)
		resp.Error = err.Error()
	}

	writeJSON(w, http.StatusAccepted, resp)
}

type registerDeviceRequest struct {
	UserID   string          `json:"user_id"`
	DeviceID string          `json:"device_id"`
	Token    string          `json:"token"`
	Platform common.Platform `json:"platform"`
}

func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.DeviceID == "" || req.Token == "" || req.Platform == "" {
		writeError(w, http.StatusBadRequest, "user_id, device_id, token, and platform are required")
		return
	}

	if err := h.service.RegisterDevice(r.Context(), req.UserID, req.DeviceID, req.Token, req.Platform); err != nil {
		log.Printf("Failed to register device: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to register device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type deactivateDeviceRequest struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

func (h *Handler) DeactivateDevice(w http.ResponseWriter, r *http.Request) {
	var req deactivateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "user_id and device_id are required")
		return
	}

	if err := h.service.DeactivateDevice(r.Context(), req.UserID, req.DeviceID); err != nil {
		log.Printf("Failed to deactivate device: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to deactivate device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type drainResponse struct {
	Notifications []common.NotificationRequest `json:"notifications"`
}

func (h *Handler) DrainCritical(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userID is required")
		return
	}

	notifications, err := h.service.DrainCritical(r.Context(), userID)
	if err != nil {
		log.Printf("Failed to drain critical mailbox for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to drain critical mailbox")
		return
	}

	if notifications == nil {
		notifications = []common.NotificationRequest{}
	}
	writeJSON(w, http.StatusOK, drainResponse{Notifications: notifications})
}

type ackRequest struct {
	NotificationIDs []string `json:"notification_ids"`
}

func (h *Handler) AckCritical(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var req ackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.AckCritical(r.Context(), userID, req.NotificationIDs); err != nil {
		log.Printf("Failed to ack critical notifications for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to ack critical notifications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type attemptView struct {
	ID            string     `json:"id"`
	Channel       string     `json:"channel"`
	Status        string     `json:"status"`
	AttemptNumber int        `json:"attempt_number"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (h *Handler) Attempts(w http.ResponseWriter, r *http.Request) {
	notificationID := mux.Vars(r)["notificationID"]

	attempts, err := h.service.AttemptsFor(r.Context(), notificationID)
	if err != nil {
		log.Printf("Failed to list attempts for %s: %v", notificationID, err)
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}

	views := make([]attemptView, len(attempts))
	for i, a := range attempts {
		views[i] = attemptView{
			ID:            a.ID,
			Channel:       a.Channel,
			Status:        a.Status,
			AttemptNumber: a.AttemptNumber,
			ErrorMessage:  a.ErrorMessage,
			NextRetryAt:   a.NextRetryAt,
			UpdatedAt:     a.UpdatedAt,
		}
	}

	writeJSON(w, http.StatusOK, map[string][]attemptView{"attempts": views})
}

func (h *Handler) ConfirmDelivered(w http.ResponseWriter, r *http.Request) {
	attemptID := mux.Vars(r)["attemptID"]

	applied, err := h.service.ConfirmDelivered(r.Context(), attemptID)
	if err != nil {
		log.Printf("Failed to confirm delivery for attempt %s: %v", attemptID, err)
		writeError(w, http.StatusInternalServerError, "failed to confirm delivery")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"applied": applied})
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Metrics(r.Context())
	if err != nil {
		log.Printf("Failed to read metrics: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read metrics")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "patternpals-notify",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
