package models

import "time"

type Therapist struct {
	TherapistID string `json:"therapist_id"`
	Name        string `json:"name"`
	RoomNumber  string `json:"room_number,omitempty"`
	Active      bool   `json:"active"`
}

type Cashier struct {
	CashierID     string `json:"cashier_id"`
	Name          string `json:"name"`
	CounterNumber string `json:"counter_number,omitempty"`
	Active        bool   `json:"active"`
}

type Room struct {
	RoomID               string  `json:"room_id"`
	RoomNumber           string  `json:"room_number"`
	Status               string  `json:"status"`
	CurrentTransactionID *string `json:"current_transaction_id,omitempty"`
}

const (
	RoomAvailable = "available"
	RoomOccupied  = "occupied"
	RoomPreparing = "preparing"
)

type Payment struct {
	PaymentID     string    `json:"payment_id"`
	TransactionID string    `json:"transaction_id"`
	CashierID     string    `json:"cashier_id"`
	AmountDue     float64   `json:"amount_due"`
	AmountPaid    float64   `json:"amount_paid"`
	ChangeAmount  float64   `json:"change_amount"`
	Method        string    `json:"method"`
	CreatedAt     time.Time `json:"created_at"`
}
