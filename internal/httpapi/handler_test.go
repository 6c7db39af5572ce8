package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spa-system/internal/models"
	"spa-system/internal/store"
)

type fakeStore struct {
	confirmFn      func(ctx context.Context, input store.ConfirmSelectionInput) (models.Transaction, bool, error)
	claimFn        func(ctx context.Context, input store.ClaimNextInput) (models.Transaction, bool, error)
	startFn        func(ctx context.Context, input store.TransactionActionInput) (models.Transaction, bool, error)
	addItemFn      func(ctx context.Context, input store.ItemInput) (models.Transaction, bool, error)
	removeItemFn   func(ctx context.Context, input store.RemoveItemInput) (models.Transaction, bool, error)
	finishFn       func(ctx context.Context, input store.TransactionActionInput) (models.Transaction, bool, error)
	claimCashierFn func(ctx context.Context, input store.ClaimNextInput) (models.Transaction, bool, error)
	payFn          func(ctx context.Context, input store.PaymentInput) (models.Payment, bool, error)
	getFn          func(ctx context.Context, transactionID string) (models.Transaction, error)
	snapshotFn     func(ctx context.Context) (store.QueueSnapshot, error)
	servicesFn     func(ctx context.Context) ([]models.Service, error)
	roomsFn        func(ctx context.Context) ([]models.Room, error)
	roomStatusFn   func(ctx context.Context, roomID, status string) (models.Room, error)
	outboxFn       func(ctx context.Context, after store.OutboxOffset, limit int) ([]store.OutboxEvent, error)
	sessionFn      func(ctx context.Context, sessionID string) (store.Session, error)
}

func (f fakeStore) ConfirmSelection(ctx context.Context, input store.ConfirmSelectionInput) (models.Transaction, bool, error) {
	if f.confirmFn == nil {
		return models.Transaction{}, false, nil
	}
	return f.confirmFn(ctx, input)
}

func (f fakeStore) ClaimNextForTherapist(ctx context.Context, input store.ClaimNextInput) (models.Transaction, bool, error) {
	if f.claimFn == nil {
		return models.Transaction{}, false, nil
	}
	return f.claimFn(ctx, input)
}

func (f fakeStore) StartService(ctx context.Context, input store.TransactionActionInput) (models.Transaction, bool, error) {
	if f.startFn == nil {
		return models.Transaction{}, false, nil
	}
	return f.startFn(ctx, input)
}

func (f fakeStore) AddItem(ctx context.Context, input store.ItemInput) (models.Transaction, bool, error) {
	if f.addItemFn == nil {
		return models.Transaction{}, false, nil
	}
	return f.addItemFn(ctx, input)
}

func (f fakeStore) RemoveItem(ctx context.Context, input store.RemoveItemInput) (models.Transaction, bool, error) {
	if f.removeItemFn == nil {
		return models.Transaction{}, false, nil
	}
	return f.removeItemFn(ctx, input)
}

func (f fakeStore) FinishService(ctx context.Context, input store.TransactionActionInput) (models.Transaction, bool, error) {
	if f.finishFn == nil {
		return models.Transaction{}, false, nil
	}
	return f.finishFn(ctx, input)
}

func (f fakeStore) ClaimNextForCashier(ctx context.Context, input store.ClaimNextInput) (models.Transaction, bool, error) {
	if f.claimCashierFn == nil {
		return models.Transaction{}, false, nil
	}
	return f.claimCashierFn(ctx, input)
}

func (f fakeStore) TakePayment(ctx context.Context, input store.PaymentInput) (models.Payment, bool, error) {
	if f.payFn == nil {
		return models.Payment{}, false, nil
	}
	return f.payFn(ctx, input)
}

func (f fakeStore) GetTransaction(ctx context.Context, transactionID string) (models.Transaction, error) {
	if f.getFn == nil {
		return models.Transaction{}, nil
	}
	return f.getFn(ctx, transactionID)
}

func (f fakeStore) SnapshotQueues(ctx context.Context) (store.QueueSnapshot, error) {
	if f.snapshotFn == nil {
		return store.QueueSnapshot{}, nil
	}
	return f.snapshotFn(ctx)
}

func (f fakeStore) ListServices(ctx context.Context) ([]models.Service, error) {
	if f.servicesFn == nil {
		return nil, nil
	}
	return f.servicesFn(ctx)
}

func (f fakeStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	if f.roomsFn == nil {
		return nil, nil
	}
	return f.roomsFn(ctx)
}

func (f fakeStore) UpdateRoomStatus(ctx context.Context, roomID, status string) (models.Room, error) {
	if f.roomStatusFn == nil {
		return models.Room{}, nil
	}
	return f.roomStatusFn(ctx, roomID, status)
}

func (f fakeStore) ListOutboxEvents(ctx context.Context, after store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
	if f.outboxFn == nil {
		return nil, nil
	}
	return f.outboxFn(ctx, after, limit)
}

func (f fakeStore) GetDispatchOffset(ctx context.Context) (store.OutboxOffset, error) {
	return store.OutboxOffset{}, nil
}

func (f fakeStore) UpdateDispatchOffset(ctx context.Context, offset store.OutboxOffset) error {
	return nil
}

func (f fakeStore) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	if f.sessionFn == nil {
		return store.Session{}, store.ErrSessionNotFound
	}
	return f.sessionFn(ctx, sessionID)
}

func TestConfirmSelectionSuccess(t *testing.T) {
	createdAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	st := fakeStore{
		confirmFn: func(ctx context.Context, input store.ConfirmSelectionInput) (models.Transaction, bool, error) {
			return models.Transaction{
				TransactionID: "txn-1",
				Code:          "0001",
				Status:        models.StatusPendingTherapist,
				CreatedAt:     createdAt,
				RequestID:     input.RequestID,
				TotalAmount:   1300,
			}, true, nil
		},
	}

	h := NewHandler(st)

	payload := map[string]interface{}{
		"request_id": "11111111-1111-1111-1111-111111111111",
		"items": []map[string]string{
			{
				"service_id": "22222222-2222-2222-2222-222222222222",
				"variant_id": "33333333-3333-3333-3333-333333333333",
			},
		},
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var txn models.Transaction
	if err := json.NewDecoder(resp.Body).Decode(&txn); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if txn.TransactionID == "" || txn.Code == "" || txn.Status != models.StatusPendingTherapist {
		t.Fatalf("unexpected transaction response: %+v", txn)
	}
}

func TestConfirmSelectionEmptyItems(t *testing.T) {
	h := NewHandler(fakeStore{})

	payload := map[string]interface{}{
		"request_id": "11111111-1111-1111-1111-111111111111",
		"items":      []map[string]string{},
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestConfirmSelectionNoResolvableItems(t *testing.T) {
	st := fakeStore{
		confirmFn: func(ctx context.Context, input store.ConfirmSelectionInput) (models.Transaction, bool, error) {
			return models.Transaction{}, false, store.ErrServiceNotFound
		},
	}
	h := NewHandler(st)

	payload := map[string]interface{}{
		"request_id": "11111111-1111-1111-1111-111111111111",
		"items": []map[string]string{
			{
				"service_id": "22222222-2222-2222-2222-222222222222",
				"variant_id": "33333333-3333-3333-3333-333333333333",
			},
		},
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestClaimNextSuccess(t *testing.T) {
	st := fakeStore{
		claimFn: func(ctx context.Context, input store.ClaimNextInput) (models.Transaction, bool, error) {
			return models.Transaction{
				TransactionID: "txn-1",
				Code:          "0001",
				Status:        models.StatusTherapistConfirmed,
				TherapistID:   &input.StaffID,
			}, true, nil
		},
	}
	h := NewHandler(st)

	payload := map[string]string{
		"request_id":   "11111111-1111-1111-1111-111111111111",
		"therapist_id": "44444444-4444-4444-4444-444444444444",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/actions/claim-next", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestClaimNextQueueEmpty(t *testing.T) {
	st := fakeStore{
		claimFn: func(ctx context.Context, input store.ClaimNextInput) (models.Transaction, bool, error) {
			return models.Transaction{}, false, store.ErrNoTransaction
		},
	}
	h := NewHandler(st)

	payload := map[string]string{
		"request_id":   "11111111-1111-1111-1111-111111111111",
		"therapist_id": "44444444-4444-4444-4444-444444444444",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/actions/claim-next", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error.Code != "queue_empty" {
		t.Fatalf("expected queue_empty, got %s", errResp.Error.Code)
	}
}

func TestStartServiceInvalidState(t *testing.T) {
	st := fakeStore{
		startFn: func(ctx context.Context, input store.TransactionActionInput) (models.Transaction, bool, error) {
			return models.Transaction{}, false, store.ErrInvalidState
		},
	}
	h := NewHandler(st)

	payload := map[string]string{
		"request_id": "11111111-1111-1111-1111-111111111111",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa/actions/start", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error.Code != "invalid_state" {
		t.Fatalf("expected invalid_state, got %s", errResp.Error.Code)
	}
}

func TestAddItemSuccess(t *testing.T) {
	st := fakeStore{
		addItemFn: func(ctx context.Context, input store.ItemInput) (models.Transaction, bool, error) {
			return models.Transaction{
				TransactionID: input.TransactionID,
				Status:        models.StatusInService,
				TotalAmount:   1800,
			}, true, nil
		},
	}
	h := NewHandler(st)

	payload := map[string]string{
		"request_id": "11111111-1111-1111-1111-111111111111",
		"service_id": "22222222-2222-2222-2222-222222222222",
		"variant_id": "33333333-3333-3333-3333-333333333333",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa/actions/add-item", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestRemoveItemNotFound(t *testing.T) {
	st := fakeStore{
		removeItemFn: func(ctx context.Context, input store.RemoveItemInput) (models.Transaction, bool, error) {
			return models.Transaction{}, false, store.ErrItemNotFound
		},
	}
	h := NewHandler(st)

	payload := map[string]string{
		"request_id": "11111111-1111-1111-1111-111111111111",
		"item_id":    "55555555-5555-5555-5555-555555555555",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa/actions/remove-item", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestPayInsufficient(t *testing.T) {
	st := fakeStore{
		payFn: func(ctx context.Context, input store.PaymentInput) (models.Payment, bool, error) {
			return models.Payment{}, false, store.ErrInsufficientPayment
		},
	}
	h := NewHandler(st)

	payload := map[string]interface{}{
		"request_id":  "11111111-1111-1111-1111-111111111111",
		"cashier_id":  "66666666-6666-6666-6666-666666666666",
		"amount_paid": 100.0,
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa/actions/pay", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error.Code != "insufficient_payment" {
		t.Fatalf("expected insufficient_payment, got %s", errResp.Error.Code)
	}
}

func TestPaySuccess(t *testing.T) {
	st := fakeStore{
		payFn: func(ctx context.Context, input store.PaymentInput) (models.Payment, bool, error) {
			return models.Payment{
				PaymentID:     "pay-1",
				TransactionID: input.TransactionID,
				AmountDue:     1800,
				AmountPaid:    input.AmountPaid,
				ChangeAmount:  200,
				Method:        "cash",
			}, true, nil
		},
	}
	h := NewHandler(st)

	payload := map[string]interface{}{
		"request_id":  "11111111-1111-1111-1111-111111111111",
		"cashier_id":  "66666666-6666-6666-6666-666666666666",
		"amount_paid": 2000.0,
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa/actions/pay", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var payment models.Payment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payment.ChangeAmount != 200 {
		t.Fatalf("expected change 200, got %v", payment.ChangeAmount)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	st := fakeStore{
		getFn: func(ctx context.Context, transactionID string) (models.Transaction, error) {
			return models.Transaction{}, store.ErrTransactionNotFound
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodGet, "/api/transactions/aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestSnapshotSuccess(t *testing.T) {
	st := fakeStore{
		snapshotFn: func(ctx context.Context) (store.QueueSnapshot, error) {
			return store.QueueSnapshot{
				Waiting: []models.Transaction{{TransactionID: "txn-1", Status: models.StatusPendingTherapist}},
			}, nil
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var snapshot store.QueueSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(snapshot.Waiting) != 1 {
		t.Fatalf("expected 1 waiting transaction, got %d", len(snapshot.Waiting))
	}
}

func TestRoomStatusInvalidValue(t *testing.T) {
	h := NewHandler(fakeStore{})

	payload := map[string]string{"status": "closed"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa/status", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestRoomStatusSuccess(t *testing.T) {
	st := fakeStore{
		roomStatusFn: func(ctx context.Context, roomID, status string) (models.Room, error) {
			return models.Room{RoomID: roomID, RoomNumber: "R1", Status: status}, nil
		},
	}
	h := NewHandler(st)

	payload := map[string]string{"status": models.RoomAvailable}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa/status", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestEventsBadAfter(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/events?after=notatime", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestAuthMiddlewareRejectsMissingSession(t *testing.T) {
	handler := NewHandler(fakeStore{})
	wrapped := AuthMiddleware(fakeStore{}, handler.Routes())

	payload := map[string]string{
		"request_id":   "11111111-1111-1111-1111-111111111111",
		"therapist_id": "44444444-4444-4444-4444-444444444444",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/actions/claim-next", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	wrapped.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestAuthMiddlewareEnforcesRole(t *testing.T) {
	st := fakeStore{
		sessionFn: func(ctx context.Context, sessionID string) (store.Session, error) {
			return store.Session{SessionID: sessionID, Role: store.RoleCashier}, nil
		},
	}
	handler := NewHandler(st)
	wrapped := AuthMiddleware(st, handler.Routes())

	payload := map[string]string{
		"request_id":   "11111111-1111-1111-1111-111111111111",
		"therapist_id": "44444444-4444-4444-4444-444444444444",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/actions/claim-next", bytes.NewReader(body))
	req.Header.Set("X-Session-ID", "session-1")
	resp := httptest.NewRecorder()

	wrapped.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestEventsLimitClamped(t *testing.T) {
	var got int
	st := fakeStore{
		outboxFn: func(ctx context.Context, after store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
			got = limit
			return nil, nil
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodGet, "/api/events?limit=10000", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if got != maxEventsLimit {
		t.Fatalf("expected limit clamped to %d, got %d", maxEventsLimit, got)
	}
}

func TestClaimNextRejectsMismatchedTherapist(t *testing.T) {
	st := fakeStore{
		sessionFn: func(ctx context.Context, sessionID string) (store.Session, error) {
			return store.Session{
				SessionID: sessionID,
				StaffID:   "99999999-9999-9999-9999-999999999999",
				Role:      store.RoleTherapist,
			}, nil
		},
		claimFn: func(ctx context.Context, input store.ClaimNextInput) (models.Transaction, bool, error) {
			return models.Transaction{TransactionID: "txn-1", Status: models.StatusTherapistConfirmed}, true, nil
		},
	}
	handler := NewHandler(st)
	wrapped := AuthMiddleware(st, handler.Routes())

	payload := map[string]string{
		"request_id":   "11111111-1111-1111-1111-111111111111",
		"therapist_id": "44444444-4444-4444-4444-444444444444",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/actions/claim-next", bytes.NewReader(body))
	req.Header.Set("X-Session-ID", "session-1")
	resp := httptest.NewRecorder()

	wrapped.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error.Code != "access_denied" {
		t.Fatalf("expected access_denied, got %s", errResp.Error.Code)
	}
}

func TestClaimNextAllowsMatchingTherapist(t *testing.T) {
	st := fakeStore{
		sessionFn: func(ctx context.Context, sessionID string) (store.Session, error) {
			return store.Session{
				SessionID: sessionID,
				StaffID:   "44444444-4444-4444-4444-444444444444",
				Role:      store.RoleTherapist,
			}, nil
		},
		claimFn: func(ctx context.Context, input store.ClaimNextInput) (models.Transaction, bool, error) {
			return models.Transaction{TransactionID: "txn-1", Status: models.StatusTherapistConfirmed}, true, nil
		},
	}
	handler := NewHandler(st)
	wrapped := AuthMiddleware(st, handler.Routes())

	payload := map[string]string{
		"request_id":   "11111111-1111-1111-1111-111111111111",
		"therapist_id": "44444444-4444-4444-4444-444444444444",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions/actions/claim-next", bytes.NewReader(body))
	req.Header.Set("X-Session-ID", "session-1")
	resp := httptest.NewRecorder()

	wrapped.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestAuthMiddlewareAllowsPublicKiosk(t *testing.T) {
	st := fakeStore{
		confirmFn: func(ctx context.Context, input store.ConfirmSelectionInput) (models.Transaction, bool, error) {
			return models.Transaction{TransactionID: "txn-1", Status: models.StatusPendingTherapist}, true, nil
		},
	}
	handler := NewHandler(st)
	wrapped := AuthMiddleware(st, handler.Routes())

	payload := map[string]interface{}{
		"request_id": "11111111-1111-1111-1111-111111111111",
		"items": []map[string]string{
			{
				"service_id": "22222222-2222-2222-2222-222222222222",
				"variant_id": "33333333-3333-3333-3333-333333333333",
			},
		},
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	wrapped.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}
