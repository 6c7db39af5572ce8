package models

import "time"

type Transaction struct {
	TransactionID        string            `json:"transaction_id"`
	Code                 string            `json:"code,omitempty"`
	Status               string            `json:"status"`
	TherapistID          *string           `json:"therapist_id,omitempty"`
	TherapistName        string            `json:"therapist,omitempty"`
	RoomNumber           *string           `json:"room_number,omitempty"`
	CashierID            *string           `json:"cashier_id,omitempty"`
	CashierName          string            `json:"cashier,omitempty"`
	CounterNumber        string            `json:"counter,omitempty"`
	TotalAmount          float64           `json:"total_amount"`
	TotalDurationMinutes int               `json:"total_duration_minutes"`
	CreatedAt            time.Time         `json:"created_at"`
	RequestID            string            `json:"request_id,omitempty"`
	SelectionConfirmedAt *time.Time        `json:"selection_confirmed_at,omitempty"`
	TherapistConfirmedAt *time.Time        `json:"therapist_confirmed_at,omitempty"`
	ServiceStartAt       *time.Time        `json:"service_start_at,omitempty"`
	ServiceFinishAt      *time.Time        `json:"service_finish_at,omitempty"`
	CashierClaimedAt     *time.Time        `json:"cashier_claimed_at,omitempty"`
	PaidAt               *time.Time        `json:"paid_at,omitempty"`
	Items                []TransactionItem `json:"items,omitempty"`
}

type TransactionItem struct {
	ItemID          string  `json:"item_id"`
	TransactionID   string  `json:"transaction_id"`
	ServiceID       string  `json:"service_id"`
	VariantID       string  `json:"variant_id"`
	ServiceName     string  `json:"service_name,omitempty"`
	VariantName     string  `json:"variant_name,omitempty"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
}

const (
	StatusSelecting          = "selecting"
	StatusPendingTherapist   = "pending_therapist"
	StatusTherapistConfirmed = "therapist_confirmed"
	StatusInService          = "in_service"
	StatusFinished           = "finished"
	StatusAwaitingPayment    = "awaiting_payment"
	StatusPaying             = "paying"
	StatusPaid               = "paid"
)

// RecomputeTotals derives the running totals from the current items. The
// stored totals must always equal this sum; every item mutation calls it
// before commit.
func (t *Transaction) RecomputeTotals() {
	var amount float64
	var duration int
	for _, item := range t.Items {
		amount += item.Price
		duration += item.DurationMinutes
	}
	t.TotalAmount = Round2(amount)
	t.TotalDurationMinutes = duration
}

func Round2(value float64) float64 {
	if value < 0 {
		return float64(int64(value*100-0.5)) / 100
	}
	return float64(int64(value*100+0.5)) / 100
}
