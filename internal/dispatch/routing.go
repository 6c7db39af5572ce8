package dispatch

import (
	"encoding/json"

	"spa-system/internal/hub"
	"spa-system/internal/store"
)

// topicsFor maps an outbox event type to the hub topics it is delivered to.
// Transaction lifecycle events always reach the monitor; queue topics only
// see the stages their stations act on.
func topicsFor(eventType string, payload json.RawMessage) []hub.Topic {
	switch eventType {
	case store.EventTxnCreated, store.EventTxnTherapistConfirmed:
		return withTransactionTopic(payload, hub.TherapistQueueTopic(), hub.MonitorTopic())
	case store.EventTxnItemsChanged, store.EventTxnServiceStarted:
		return withTransactionTopic(payload, hub.MonitorTopic())
	case store.EventTxnServiceFinished, store.EventTxnCashierClaimed, store.EventTxnPaid:
		// Settlement-side events go to the cashier queue and monitor only;
		// the kiosk stops following its transaction once service ends.
		return []hub.Topic{hub.CashierQueueTopic(), hub.MonitorTopic()}
	case store.EventRoomStatusChanged:
		return []hub.Topic{hub.MonitorTopic()}
	default:
		return nil
	}
}

func withTransactionTopic(payload json.RawMessage, topics ...hub.Topic) []hub.Topic {
	if id := transactionID(payload); id != "" {
		topics = append(topics, hub.TransactionTopic(id))
	}
	return topics
}

func transactionID(payload json.RawMessage) string {
	var envelope struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ""
	}
	return envelope.TransactionID
}
