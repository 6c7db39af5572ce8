package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"spa-system/internal/models"
	"spa-system/internal/store"

	"github.com/google/uuid"
)

// maxEventsLimit bounds a single /api/events page.
const maxEventsLimit = 500

type Handler struct {
	store store.TransactionStore
}

type confirmSelectionRequest struct {
	RequestID string    `json:"request_id"`
	Items     []itemRef `json:"items"`
}

type itemRef struct {
	ServiceID string `json:"service_id"`
	VariantID string `json:"variant_id"`
}

type claimNextRequest struct {
	RequestID   string `json:"request_id"`
	TherapistID string `json:"therapist_id"`
}

type claimPaymentRequest struct {
	RequestID string `json:"request_id"`
	CashierID string `json:"cashier_id"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(store store.TransactionStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/transactions", h.handleTransactions)
	mux.HandleFunc("/api/transactions/actions/claim-next", h.handleClaimNext)
	mux.HandleFunc("/api/transactions/actions/claim-payment", h.handleClaimPayment)
	mux.HandleFunc("/api/transactions/", h.handleTransactionByID)
	mux.HandleFunc("/api/snapshot", h.handleSnapshot)
	mux.HandleFunc("/api/services", h.handleServices)
	mux.HandleFunc("/api/rooms", h.handleRooms)
	mux.HandleFunc("/api/rooms/", h.handleRoomStatus)
	mux.HandleFunc("/api/events", h.handleEvents)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req confirmSelectionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id is required")
		return
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "items must not be empty")
		return
	}

	items := make([]store.ItemRef, 0, len(req.Items))
	for _, ref := range req.Items {
		serviceID := strings.TrimSpace(ref.ServiceID)
		variantID := strings.TrimSpace(ref.VariantID)
		if !isValidUUID(serviceID) || !isValidUUID(variantID) {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "items require service_id and variant_id UUIDs")
			return
		}
		items = append(items, store.ItemRef{ServiceID: serviceID, VariantID: variantID})
	}

	txn, _, err := h.store.ConfirmSelection(r.Context(), store.ConfirmSelectionInput{
		RequestID: req.RequestID,
		Items:     items,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, txn)
}

func (h *Handler) handleClaimNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req claimNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.TherapistID = strings.TrimSpace(req.TherapistID)
	if req.RequestID == "" || req.TherapistID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and therapist_id are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.TherapistID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and therapist_id must be UUIDs")
		return
	}
	if !sessionAllowsStaff(r.Context(), req.TherapistID) {
		writeError(w, req.RequestID, http.StatusForbidden, "access_denied", "therapist_id does not match session")
		return
	}

	txn, _, err := h.store.ClaimNextForTherapist(r.Context(), store.ClaimNextInput{
		RequestID: req.RequestID,
		StaffID:   req.TherapistID,
		ClaimedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNoTransaction) {
			writeError(w, req.RequestID, http.StatusConflict, "queue_empty", "no transactions waiting")
			return
		}
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, txn)
}

func (h *Handler) handleClaimPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req claimPaymentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.CashierID = strings.TrimSpace(req.CashierID)
	if req.RequestID == "" || req.CashierID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and cashier_id are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.CashierID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and cashier_id must be UUIDs")
		return
	}
	if !sessionAllowsStaff(r.Context(), req.CashierID) {
		writeError(w, req.RequestID, http.StatusForbidden, "access_denied", "cashier_id does not match session")
		return
	}

	txn, _, err := h.store.ClaimNextForCashier(r.Context(), store.ClaimNextInput{
		RequestID: req.RequestID,
		StaffID:   req.CashierID,
		ClaimedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNoTransaction) {
			writeError(w, req.RequestID, http.StatusConflict, "queue_empty", "no finished transactions waiting")
			return
		}
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, txn)
}

func (h *Handler) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGetTransaction(w, r, parts[0])
		return
	}

	if len(parts) != 3 || parts[1] != "actions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	transactionID := parts[0]
	if !isValidUUID(transactionID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "transaction_id must be a UUID")
		return
	}

	switch parts[2] {
	case "start":
		h.handleStartService(w, r, transactionID)
	case "finish":
		h.handleFinishService(w, r, transactionID)
	case "add-item":
		h.handleAddItem(w, r, transactionID)
	case "remove-item":
		h.handleRemoveItem(w, r, transactionID)
	case "pay":
		h.handlePay(w, r, transactionID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request, transactionID string) {
	if !isValidUUID(transactionID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "transaction_id must be a UUID")
		return
	}

	txn, err := h.store.GetTransaction(r.Context(), transactionID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

type transactionActionRequest struct {
	RequestID   string `json:"request_id"`
	TherapistID string `json:"therapist_id"`
}

type addItemRequest struct {
	RequestID string `json:"request_id"`
	ServiceID string `json:"service_id"`
	VariantID string `json:"variant_id"`
}

type removeItemRequest struct {
	RequestID string `json:"request_id"`
	ItemID    string `json:"item_id"`
}

type payRequest struct {
	RequestID  string  `json:"request_id"`
	CashierID  string  `json:"cashier_id"`
	AmountPaid float64 `json:"amount_paid"`
	Method     string  `json:"method"`
}

func (h *Handler) handleStartService(w http.ResponseWriter, r *http.Request, transactionID string) {
	var req transactionActionRequest
	if !decodeActionRequest(w, r, &req) {
		return
	}

	txn, _, err := h.store.StartService(r.Context(), store.TransactionActionInput{
		RequestID:     req.RequestID,
		TransactionID: transactionID,
		TherapistID:   req.TherapistID,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (h *Handler) handleFinishService(w http.ResponseWriter, r *http.Request, transactionID string) {
	var req transactionActionRequest
	if !decodeActionRequest(w, r, &req) {
		return
	}

	txn, _, err := h.store.FinishService(r.Context(), store.TransactionActionInput{
		RequestID:     req.RequestID,
		TransactionID: transactionID,
		TherapistID:   req.TherapistID,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request, transactionID string) {
	var req addItemRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.VariantID = strings.TrimSpace(req.VariantID)
	if req.RequestID == "" || req.ServiceID == "" || req.VariantID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id, service_id, and variant_id are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.ServiceID) || !isValidUUID(req.VariantID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id, service_id, and variant_id must be UUIDs")
		return
	}

	txn, _, err := h.store.AddItem(r.Context(), store.ItemInput{
		RequestID:     req.RequestID,
		TransactionID: transactionID,
		ServiceID:     req.ServiceID,
		VariantID:     req.VariantID,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request, transactionID string) {
	var req removeItemRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.ItemID = strings.TrimSpace(req.ItemID)
	if req.RequestID == "" || req.ItemID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and item_id are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.ItemID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and item_id must be UUIDs")
		return
	}

	txn, _, err := h.store.RemoveItem(r.Context(), store.RemoveItemInput{
		RequestID:     req.RequestID,
		TransactionID: transactionID,
		ItemID:        req.ItemID,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request, transactionID string) {
	var req payRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.CashierID = strings.TrimSpace(req.CashierID)
	req.Method = strings.TrimSpace(req.Method)
	if req.RequestID == "" || req.CashierID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and cashier_id are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.CashierID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and cashier_id must be UUIDs")
		return
	}
	if req.AmountPaid < 0 {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "amount_paid must not be negative")
		return
	}

	payment, _, err := h.store.TakePayment(r.Context(), store.PaymentInput{
		RequestID:     req.RequestID,
		TransactionID: transactionID,
		CashierID:     req.CashierID,
		AmountPaid:    req.AmountPaid,
		Method:        req.Method,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := h.store.SnapshotQueues(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	services, err := h.store.ListServices(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (h *Handler) handleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rooms, err := h.store.ListRooms(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *Handler) handleRoomStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "status" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	roomID := parts[0]
	if !isValidUUID(roomID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "room_id must be a UUID")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Status = strings.TrimSpace(req.Status)
	switch req.Status {
	case models.RoomAvailable, models.RoomOccupied, models.RoomPreparing:
	default:
		writeError(w, "", http.StatusBadRequest, "invalid_request", "status must be available, occupied, or preparing")
		return
	}

	room, err := h.store.UpdateRoomStatus(r.Context(), roomID, req.Status)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var after store.OutboxOffset
	if afterRaw := strings.TrimSpace(r.URL.Query().Get("after")); afterRaw != "" {
		parsed, err := time.Parse(time.RFC3339, afterRaw)
		if err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "after must be RFC3339 timestamp")
			return
		}
		after.LastEventTime = parsed
	}
	if afterID := strings.TrimSpace(r.URL.Query().Get("after_id")); afterID != "" {
		if !isValidUUID(afterID) {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "after_id must be a UUID")
			return
		}
		after.LastEventID = afterID
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		if parsed > maxEventsLimit {
			parsed = maxEventsLimit
		}
		limit = parsed
	}

	events, err := h.store.ListOutboxEvents(r.Context(), after, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func decodeActionRequest(w http.ResponseWriter, r *http.Request, req *transactionActionRequest) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.TherapistID = strings.TrimSpace(req.TherapistID)
	if req.RequestID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id is required")
		return false
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return false
	}
	if req.TherapistID != "" && !isValidUUID(req.TherapistID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "therapist_id must be a UUID when provided")
		return false
	}
	return true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrServiceNotFound):
		return http.StatusNotFound, "service_not_found", "service not found"
	case errors.Is(err, store.ErrTransactionNotFound):
		return http.StatusNotFound, "transaction_not_found", "transaction not found"
	case errors.Is(err, store.ErrItemNotFound):
		return http.StatusNotFound, "item_not_found", "item not found"
	case errors.Is(err, store.ErrTherapistNotFound):
		return http.StatusNotFound, "therapist_not_found", "therapist not found"
	case errors.Is(err, store.ErrCashierNotFound):
		return http.StatusNotFound, "cashier_not_found", "cashier not found"
	case errors.Is(err, store.ErrRoomNotFound):
		return http.StatusNotFound, "room_not_found", "room not found"
	case errors.Is(err, store.ErrNoTransaction):
		return http.StatusConflict, "queue_empty", "no transactions waiting"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "transaction state does not allow this action"
	case errors.Is(err, store.ErrInsufficientPayment):
		return http.StatusConflict, "insufficient_payment", "amount paid does not cover the total"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "session_expired", "session not found or expired"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
