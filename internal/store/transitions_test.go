package store

import "testing"

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{"confirm_selection", "selecting", true},
		{"confirm_selection", "pending_therapist", false},
		{"claim_therapist", "pending_therapist", true},
		{"claim_therapist", "therapist_confirmed", false},
		{"start_service", "therapist_confirmed", true},
		{"start_service", "pending_therapist", false},
		{"start_service", "in_service", false},
		{"add_item", "therapist_confirmed", true},
		{"add_item", "in_service", true},
		{"add_item", "finished", false},
		{"add_item", "pending_therapist", false},
		{"remove_item", "therapist_confirmed", true},
		{"remove_item", "in_service", true},
		{"remove_item", "awaiting_payment", false},
		{"finish_service", "in_service", true},
		{"finish_service", "therapist_confirmed", false},
		{"claim_cashier", "finished", true},
		{"claim_cashier", "in_service", false},
		{"take_payment", "awaiting_payment", true},
		{"take_payment", "paying", true},
		{"take_payment", "paid", false},
		{"take_payment", "finished", false},
		{"unknown", "pending_therapist", false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}
