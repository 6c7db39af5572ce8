package store

import (
	"context"
	"encoding/json"
	"time"

	"spa-system/internal/models"
)

type ItemRef struct {
	ServiceID string `json:"service_id"`
	VariantID string `json:"variant_id"`
}

type ConfirmSelectionInput struct {
	RequestID string
	Items     []ItemRef
	CreatedAt time.Time
}

type ClaimNextInput struct {
	RequestID string
	StaffID   string
	ClaimedAt time.Time
}

type TransactionActionInput struct {
	RequestID     string
	TransactionID string
	TherapistID   string
	OccurredAt    time.Time
}

type ItemInput struct {
	RequestID     string
	TransactionID string
	ServiceID     string
	VariantID     string
}

type RemoveItemInput struct {
	RequestID     string
	TransactionID string
	ItemID        string
}

type PaymentInput struct {
	RequestID     string
	TransactionID string
	CashierID     string
	AmountPaid    float64
	Method        string
	OccurredAt    time.Time
}

// QueueSnapshot is the full read-only projection used by the monitor and by
// clients resynchronizing after missed notifications. Each list is ordered by
// the timestamp that made its members eligible for the stage.
type QueueSnapshot struct {
	Waiting         []models.Transaction `json:"waiting"`
	Serving         []models.Transaction `json:"serving"`
	Finished        []models.Transaction `json:"finished"`
	PaymentAssigned []models.Transaction `json:"payment_assigned"`
	Rooms           []models.Room        `json:"rooms"`
	Cashiers        []models.Cashier     `json:"cashiers"`
}

type TransactionStore interface {
	ConfirmSelection(ctx context.Context, input ConfirmSelectionInput) (models.Transaction, bool, error)
	ClaimNextForTherapist(ctx context.Context, input ClaimNextInput) (models.Transaction, bool, error)
	StartService(ctx context.Context, input TransactionActionInput) (models.Transaction, bool, error)
	AddItem(ctx context.Context, input ItemInput) (models.Transaction, bool, error)
	RemoveItem(ctx context.Context, input RemoveItemInput) (models.Transaction, bool, error)
	FinishService(ctx context.Context, input TransactionActionInput) (models.Transaction, bool, error)
	ClaimNextForCashier(ctx context.Context, input ClaimNextInput) (models.Transaction, bool, error)
	TakePayment(ctx context.Context, input PaymentInput) (models.Payment, bool, error)
	GetTransaction(ctx context.Context, transactionID string) (models.Transaction, error)
	SnapshotQueues(ctx context.Context) (QueueSnapshot, error)
	ListServices(ctx context.Context) ([]models.Service, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	UpdateRoomStatus(ctx context.Context, roomID, status string) (models.Room, error)
	ListOutboxEvents(ctx context.Context, after OutboxOffset, limit int) ([]OutboxEvent, error)
	GetDispatchOffset(ctx context.Context) (OutboxOffset, error)
	UpdateDispatchOffset(ctx context.Context, offset OutboxOffset) error
	GetSession(ctx context.Context, sessionID string) (Session, error)
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type OutboxOffset struct {
	LastEventTime time.Time
	LastEventID   string
}

// Session is the resolved identity of a calling therapist or cashier. The
// core trusts it; issuing and storing credentials happens elsewhere.
type Session struct {
	SessionID string
	StaffID   string
	Role      string
	Name      string
	Station   string
	ExpiresAt time.Time
}

const (
	RoleTherapist = "therapist"
	RoleCashier   = "cashier"
	RoleMonitor   = "monitor"
)
