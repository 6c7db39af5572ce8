package store

// Outbox event types, written in the same database transaction as the
// mutation they describe and fanned out by the dispatcher after commit.
const (
	EventTxnCreated            = "txn.created"
	EventTxnTherapistConfirmed = "txn.therapist_confirmed"
	EventTxnItemsChanged       = "txn.items_changed"
	EventTxnServiceStarted     = "txn.service_started"
	EventTxnServiceFinished    = "txn.service_finished"
	EventTxnCashierClaimed     = "txn.cashier_claimed"
	EventTxnPaid               = "txn.paid"
	EventRoomStatusChanged     = "room.status_changed"
)
