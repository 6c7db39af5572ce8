package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spa-system/internal/models"
	"spa-system/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const codePad = 4

const zeroUUID = "00000000-0000-0000-0000-000000000000"

type Store struct {
	pool          *pgxpool.Pool
	defaultMethod string
}

type Options struct {
	DefaultPaymentMethod string
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	method := options.DefaultPaymentMethod
	if method == "" {
		method = "cash"
	}
	return &Store{pool: pool, defaultMethod: method}
}

const txnColumns = `
	t.transaction_id, t.code, t.status, t.therapist_id, t.room_number, t.cashier_id,
	t.total_amount, t.total_duration_minutes, t.created_at, t.selection_confirmed_at,
	t.therapist_confirmed_at, t.service_start_at, t.service_finish_at, t.cashier_claimed_at, t.paid_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var txn models.Transaction
	var codeNull sql.NullString
	var therapistNull sql.NullString
	var roomNull sql.NullString
	var cashierNull sql.NullString
	var selectionNull sql.NullTime
	var confirmedNull sql.NullTime
	var startNull sql.NullTime
	var finishNull sql.NullTime
	var claimedNull sql.NullTime
	var paidNull sql.NullTime
	if err := row.Scan(
		&txn.TransactionID, &codeNull, &txn.Status, &therapistNull, &roomNull, &cashierNull,
		&txn.TotalAmount, &txn.TotalDurationMinutes, &txn.CreatedAt, &selectionNull,
		&confirmedNull, &startNull, &finishNull, &claimedNull, &paidNull,
	); err != nil {
		return models.Transaction{}, err
	}
	if codeNull.Valid {
		txn.Code = codeNull.String
	}
	txn.TherapistID = nullStringPtr(therapistNull)
	txn.RoomNumber = nullStringPtr(roomNull)
	txn.CashierID = nullStringPtr(cashierNull)
	txn.SelectionConfirmedAt = nullTimePtr(selectionNull)
	txn.TherapistConfirmedAt = nullTimePtr(confirmedNull)
	txn.ServiceStartAt = nullTimePtr(startNull)
	txn.ServiceFinishAt = nullTimePtr(finishNull)
	txn.CashierClaimedAt = nullTimePtr(claimedNull)
	txn.PaidAt = nullTimePtr(paidNull)
	return txn, nil
}

func (s *Store) ConfirmSelection(ctx context.Context, input store.ConfirmSelectionInput) (models.Transaction, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Transaction{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findTransactionByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Transaction{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Transaction{}, false, err
		}
		return existing, false, nil
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var items []models.TransactionItem
	for _, ref := range input.Items {
		variant, svcName, resolveErr := resolveVariant(ctx, tx, ref.ServiceID, ref.VariantID)
		if resolveErr != nil {
			if errors.Is(resolveErr, store.ErrServiceNotFound) {
				// Unknown catalog references on the initial selection are
				// dropped; the kiosk reconciles against /api/services.
				continue
			}
			err = resolveErr
			return models.Transaction{}, false, err
		}
		items = append(items, models.TransactionItem{
			ItemID:          uuid.NewString(),
			ServiceID:       ref.ServiceID,
			VariantID:       ref.VariantID,
			ServiceName:     svcName,
			VariantName:     variant.Name,
			Price:           variant.Price,
			DurationMinutes: variant.DurationMinutes,
		})
	}
	if len(items) == 0 {
		err = store.ErrServiceNotFound
		return models.Transaction{}, false, err
	}

	code, err := nextTransactionCode(ctx, tx)
	if err != nil {
		return models.Transaction{}, false, err
	}

	txn := models.Transaction{
		TransactionID:        uuid.NewString(),
		Code:                 code,
		Status:               models.StatusPendingTherapist,
		CreatedAt:            createdAt,
		RequestID:            input.RequestID,
		SelectionConfirmedAt: &createdAt,
		Items:                items,
	}
	txn.RecomputeTotals()

	tag, err := tx.Exec(ctx, `
		INSERT INTO transactions (
			transaction_id, request_id, code, status, total_amount, total_duration_minutes,
			created_at, selection_confirmed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (request_id) DO NOTHING
	`, txn.TransactionID, input.RequestID, code, txn.Status, txn.TotalAmount, txn.TotalDurationMinutes, createdAt, createdAt)
	if err != nil {
		return models.Transaction{}, false, err
	}
	if tag.RowsAffected() == 0 {
		// Lost the insert race to a concurrent duplicate of the same
		// request; return the recorded outcome instead.
		existing, found, err = findTransactionByRequestID(ctx, tx, input.RequestID)
		if err != nil {
			return models.Transaction{}, false, err
		}
		if !found {
			err = store.ErrTransactionNotFound
			return models.Transaction{}, false, err
		}
		if err = tx.Commit(ctx); err != nil {
			return models.Transaction{}, false, err
		}
		return existing, false, nil
	}

	for i := range txn.Items {
		txn.Items[i].TransactionID = txn.TransactionID
		if err = insertItem(ctx, tx, txn.Items[i]); err != nil {
			return models.Transaction{}, false, err
		}
	}

	if err = insertOutboxEvent(ctx, tx, store.EventTxnCreated, txnPayload(txn)); err != nil {
		return models.Transaction{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Transaction{}, false, err
	}
	return txn, true, nil
}

func (s *Store) ClaimNextForTherapist(ctx context.Context, input store.ClaimNextInput) (models.Transaction, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Transaction{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "claim_therapist", input.RequestID)
	if err != nil {
		return models.Transaction{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Transaction{}, false, err
		}
		if empty {
			return models.Transaction{}, false, store.ErrNoTransaction
		}
		return existing, false, nil
	}

	var therapistName string
	var roomNull sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT name, room_number
		FROM therapists
		WHERE therapist_id = $1 AND active = TRUE
	`, input.StaffID)
	if err = row.Scan(&therapistName, &roomNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTherapistNotFound
		}
		return models.Transaction{}, false, err
	}

	claimedAt := input.ClaimedAt
	if claimedAt.IsZero() {
		claimedAt = time.Now().UTC()
	}

	row = tx.QueryRow(ctx, `
		WITH next_txn AS (
			SELECT transaction_id
			FROM transactions
			WHERE status = $1
			ORDER BY selection_confirmed_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE transactions t
		SET status = $2,
			therapist_id = $3,
			room_number = $4,
			therapist_confirmed_at = $5
		FROM next_txn
		WHERE t.transaction_id = next_txn.transaction_id
		RETURNING `+txnColumns,
		models.StatusPendingTherapist, models.StatusTherapistConfirmed,
		input.StaffID, nullIfEmpty(roomNull.String), claimedAt)

	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err = insertActionRequest(ctx, tx, "claim_therapist", input.RequestID, ""); err != nil {
				return models.Transaction{}, false, err
			}
			if err = tx.Commit(ctx); err != nil {
				return models.Transaction{}, false, err
			}
			return models.Transaction{}, false, store.ErrNoTransaction
		}
		return models.Transaction{}, false, err
	}

	if txn.Code == "" {
		// Legacy rows created before code allocation moved to selection time.
		txn.Code, err = nextTransactionCode(ctx, tx)
		if err != nil {
			return models.Transaction{}, false, err
		}
		if _, err = tx.Exec(ctx, `UPDATE transactions SET code = $1 WHERE transaction_id = $2`, txn.Code, txn.TransactionID); err != nil {
			return models.Transaction{}, false, err
		}
	}

	if roomNull.Valid && roomNull.String != "" {
		if _, err = tx.Exec(ctx, `
			UPDATE rooms
			SET status = $1, current_transaction_id = $2
			WHERE room_number = $3
		`, models.RoomOccupied, txn.TransactionID, roomNull.String); err != nil {
			return models.Transaction{}, false, err
		}
	}

	txn.TherapistName = therapistName
	txn.RequestID = input.RequestID
	if txn.Items, err = loadItems(ctx, tx, txn.TransactionID); err != nil {
		return models.Transaction{}, false, err
	}

	if err = insertActionRequest(ctx, tx, "claim_therapist", input.RequestID, txn.TransactionID); err != nil {
		return models.Transaction{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, store.EventTxnTherapistConfirmed, txnPayload(txn)); err != nil {
		return models.Transaction{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Transaction{}, false, err
	}
	return txn, true, nil
}

func (s *Store) StartService(ctx context.Context, input store.TransactionActionInput) (models.Transaction, bool, error) {
	return s.updateTransactionStatus(ctx, input, "start_service",
		models.StatusTherapistConfirmed, models.StatusInService,
		store.EventTxnServiceStarted, "service_start_at", nil)
}

func (s *Store) FinishService(ctx context.Context, input store.TransactionActionInput) (models.Transaction, bool, error) {
	return s.updateTransactionStatus(ctx, input, "finish_service",
		models.StatusInService, models.StatusFinished,
		store.EventTxnServiceFinished, "service_finish_at",
		func(ctx context.Context, tx pgx.Tx, txn models.Transaction) error {
			if txn.RoomNumber == nil || *txn.RoomNumber == "" {
				return nil
			}
			// Room turnover happens off the transaction lifecycle; the
			// therapist flips it back to available when ready.
			_, err := tx.Exec(ctx, `
				UPDATE rooms
				SET status = $1, current_transaction_id = NULL
				WHERE room_number = $2
			`, models.RoomPreparing, *txn.RoomNumber)
			return err
		})
}

func (s *Store) updateTransactionStatus(ctx context.Context, input store.TransactionActionInput, action, fromStatus, toStatus, eventType, timestampColumn string, post func(context.Context, pgx.Tx, models.Transaction) error) (models.Transaction, bool, error) {
	if !store.ValidTransition(action, fromStatus) {
		return models.Transaction{}, false, store.ErrInvalidState
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Transaction{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, action, input.RequestID)
	if err != nil {
		return models.Transaction{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Transaction{}, false, err
		}
		if empty {
			return models.Transaction{}, false, store.ErrInvalidState
		}
		return existing, false, nil
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, fmt.Sprintf(`
		UPDATE transactions t
		SET status = $1, %s = $2
		WHERE t.transaction_id = $3 AND t.status = $4
		RETURNING `+txnColumns, timestampColumn),
		toStatus, occurredAt, input.TransactionID, fromStatus)

	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			exists, checkErr := transactionExists(ctx, tx, input.TransactionID)
			if checkErr != nil {
				err = checkErr
				return models.Transaction{}, false, err
			}
			if !exists {
				err = store.ErrTransactionNotFound
			} else {
				err = store.ErrInvalidState
			}
			return models.Transaction{}, false, err
		}
		return models.Transaction{}, false, err
	}

	txn.RequestID = input.RequestID
	if txn.Items, err = loadItems(ctx, tx, txn.TransactionID); err != nil {
		return models.Transaction{}, false, err
	}

	if post != nil {
		if err = post(ctx, tx, txn); err != nil {
			return models.Transaction{}, false, err
		}
	}

	if err = insertActionRequest(ctx, tx, action, input.RequestID, txn.TransactionID); err != nil {
		return models.Transaction{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, eventType, txnPayload(txn)); err != nil {
		return models.Transaction{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Transaction{}, false, err
	}
	return txn, true, nil
}

func (s *Store) AddItem(ctx context.Context, input store.ItemInput) (models.Transaction, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Transaction{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "add_item", input.RequestID)
	if err != nil {
		return models.Transaction{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Transaction{}, false, err
		}
		if empty {
			return models.Transaction{}, false, store.ErrInvalidState
		}
		return existing, false, nil
	}

	status, err := lockTransaction(ctx, tx, input.TransactionID)
	if err != nil {
		return models.Transaction{}, false, err
	}
	if !store.ValidTransition("add_item", status) {
		err = store.ErrInvalidState
		return models.Transaction{}, false, err
	}

	variant, svcName, err := resolveVariant(ctx, tx, input.ServiceID, input.VariantID)
	if err != nil {
		return models.Transaction{}, false, err
	}

	item := models.TransactionItem{
		ItemID:          uuid.NewString(),
		TransactionID:   input.TransactionID,
		ServiceID:       input.ServiceID,
		VariantID:       input.VariantID,
		ServiceName:     svcName,
		VariantName:     variant.Name,
		Price:           variant.Price,
		DurationMinutes: variant.DurationMinutes,
	}
	if err = insertItem(ctx, tx, item); err != nil {
		return models.Transaction{}, false, err
	}

	txn, err := recomputeTotals(ctx, tx, input.TransactionID)
	if err != nil {
		return models.Transaction{}, false, err
	}
	txn.RequestID = input.RequestID
	if txn.Items, err = loadItems(ctx, tx, txn.TransactionID); err != nil {
		return models.Transaction{}, false, err
	}

	if err = insertActionRequest(ctx, tx, "add_item", input.RequestID, txn.TransactionID); err != nil {
		return models.Transaction{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, store.EventTxnItemsChanged, txnPayload(txn)); err != nil {
		return models.Transaction{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Transaction{}, false, err
	}
	return txn, true, nil
}

func (s *Store) RemoveItem(ctx context.Context, input store.RemoveItemInput) (models.Transaction, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Transaction{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "remove_item", input.RequestID)
	if err != nil {
		return models.Transaction{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Transaction{}, false, err
		}
		if empty {
			return models.Transaction{}, false, store.ErrInvalidState
		}
		return existing, false, nil
	}

	status, err := lockTransaction(ctx, tx, input.TransactionID)
	if err != nil {
		return models.Transaction{}, false, err
	}
	if !store.ValidTransition("remove_item", status) {
		err = store.ErrInvalidState
		return models.Transaction{}, false, err
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM transaction_items
		WHERE item_id = $1 AND transaction_id = $2
	`, input.ItemID, input.TransactionID)
	if err != nil {
		return models.Transaction{}, false, err
	}
	if tag.RowsAffected() == 0 {
		err = store.ErrItemNotFound
		return models.Transaction{}, false, err
	}

	txn, err := recomputeTotals(ctx, tx, input.TransactionID)
	if err != nil {
		return models.Transaction{}, false, err
	}
	txn.RequestID = input.RequestID
	if txn.Items, err = loadItems(ctx, tx, txn.TransactionID); err != nil {
		return models.Transaction{}, false, err
	}

	if err = insertActionRequest(ctx, tx, "remove_item", input.RequestID, txn.TransactionID); err != nil {
		return models.Transaction{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, store.EventTxnItemsChanged, txnPayload(txn)); err != nil {
		return models.Transaction{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Transaction{}, false, err
	}
	return txn, true, nil
}

func (s *Store) ClaimNextForCashier(ctx context.Context, input store.ClaimNextInput) (models.Transaction, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Transaction{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "claim_cashier", input.RequestID)
	if err != nil {
		return models.Transaction{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Transaction{}, false, err
		}
		if empty {
			return models.Transaction{}, false, store.ErrNoTransaction
		}
		return existing, false, nil
	}

	var cashierName string
	var counterNull sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT name, counter_number
		FROM cashiers
		WHERE cashier_id = $1 AND active = TRUE
	`, input.StaffID)
	if err = row.Scan(&cashierName, &counterNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrCashierNotFound
		}
		return models.Transaction{}, false, err
	}

	claimedAt := input.ClaimedAt
	if claimedAt.IsZero() {
		claimedAt = time.Now().UTC()
	}

	row = tx.QueryRow(ctx, `
		WITH next_txn AS (
			SELECT transaction_id
			FROM transactions
			WHERE status = $1
			ORDER BY service_finish_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE transactions t
		SET status = $2,
			cashier_id = $3,
			cashier_claimed_at = $4
		FROM next_txn
		WHERE t.transaction_id = next_txn.transaction_id
		RETURNING `+txnColumns,
		models.StatusFinished, models.StatusAwaitingPayment, input.StaffID, claimedAt)

	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err = insertActionRequest(ctx, tx, "claim_cashier", input.RequestID, ""); err != nil {
				return models.Transaction{}, false, err
			}
			if err = tx.Commit(ctx); err != nil {
				return models.Transaction{}, false, err
			}
			return models.Transaction{}, false, store.ErrNoTransaction
		}
		return models.Transaction{}, false, err
	}

	txn.CashierName = cashierName
	if counterNull.Valid {
		txn.CounterNumber = counterNull.String
	}
	txn.RequestID = input.RequestID
	if txn.Items, err = loadItems(ctx, tx, txn.TransactionID); err != nil {
		return models.Transaction{}, false, err
	}

	if err = insertActionRequest(ctx, tx, "claim_cashier", input.RequestID, txn.TransactionID); err != nil {
		return models.Transaction{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, store.EventTxnCashierClaimed, txnPayload(txn)); err != nil {
		return models.Transaction{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Transaction{}, false, err
	}
	return txn, true, nil
}

func (s *Store) TakePayment(ctx context.Context, input store.PaymentInput) (models.Payment, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Payment{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findPaymentRequest(ctx, tx, input.RequestID)
	if err != nil {
		return models.Payment{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Payment{}, false, err
		}
		return existing, false, nil
	}

	status, err := lockTransaction(ctx, tx, input.TransactionID)
	if err != nil {
		return models.Payment{}, false, err
	}
	if !store.ValidTransition("take_payment", status) {
		err = store.ErrInvalidState
		return models.Payment{}, false, err
	}

	// Transient validation state. It only becomes visible if a later
	// statement in this transaction fails mid-flight.
	if _, err = tx.Exec(ctx, `
		UPDATE transactions SET status = $1 WHERE transaction_id = $2
	`, models.StatusPaying, input.TransactionID); err != nil {
		return models.Payment{}, false, err
	}

	var amountDue float64
	row := tx.QueryRow(ctx, `
		SELECT total_amount FROM transactions WHERE transaction_id = $1
	`, input.TransactionID)
	if err = row.Scan(&amountDue); err != nil {
		return models.Payment{}, false, err
	}

	if input.AmountPaid < amountDue {
		err = store.ErrInsufficientPayment
		return models.Payment{}, false, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	method := input.Method
	if method == "" {
		method = s.defaultMethod
	}

	payment := models.Payment{
		PaymentID:     uuid.NewString(),
		TransactionID: input.TransactionID,
		CashierID:     input.CashierID,
		AmountDue:     amountDue,
		AmountPaid:    input.AmountPaid,
		ChangeAmount:  models.Round2(input.AmountPaid - amountDue),
		Method:        method,
		CreatedAt:     occurredAt,
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO payments (payment_id, transaction_id, cashier_id, amount_due, amount_paid, change_amount, method, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, payment.PaymentID, payment.TransactionID, payment.CashierID, payment.AmountDue, payment.AmountPaid, payment.ChangeAmount, payment.Method, payment.CreatedAt); err != nil {
		return models.Payment{}, false, err
	}

	row = tx.QueryRow(ctx, `
		UPDATE transactions t
		SET status = $1, paid_at = $2
		WHERE t.transaction_id = $3
		RETURNING `+txnColumns,
		models.StatusPaid, occurredAt, input.TransactionID)
	txn, err := scanTransaction(row)
	if err != nil {
		return models.Payment{}, false, err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO action_requests (request_id, action, transaction_id, payment_id)
		VALUES ($1, 'take_payment', $2, $3)
		ON CONFLICT (request_id) DO NOTHING
	`, input.RequestID, input.TransactionID, payment.PaymentID); err != nil {
		return models.Payment{}, false, err
	}

	payload := txnPayload(txn)
	payload["change_amount"] = payment.ChangeAmount
	payload["amount_paid"] = payment.AmountPaid
	if err = insertOutboxEvent(ctx, tx, store.EventTxnPaid, payload); err != nil {
		return models.Payment{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Payment{}, false, err
	}
	return payment, true, nil
}

func (s *Store) GetTransaction(ctx context.Context, transactionID string) (models.Transaction, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+txnColumns+`,
			th.name, c.name, c.counter_number
		FROM transactions t
		LEFT JOIN therapists th ON th.therapist_id = t.therapist_id
		LEFT JOIN cashiers c ON c.cashier_id = t.cashier_id
		WHERE t.transaction_id = $1
	`, transactionID)

	txn, err := scanTransactionWithStaff(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Transaction{}, store.ErrTransactionNotFound
		}
		return models.Transaction{}, err
	}
	if txn.Items, err = loadItems(ctx, s.pool, txn.TransactionID); err != nil {
		return models.Transaction{}, err
	}
	return txn, nil
}

func (s *Store) SnapshotQueues(ctx context.Context) (store.QueueSnapshot, error) {
	var snapshot store.QueueSnapshot
	var err error

	if snapshot.Waiting, err = s.listByStatus(ctx, "t.selection_confirmed_at", models.StatusPendingTherapist); err != nil {
		return store.QueueSnapshot{}, err
	}
	// The serving section merges the pre-service and in-service stages,
	// ordered by when each transaction entered service prep.
	if snapshot.Serving, err = s.listByStatus(ctx, "t.therapist_confirmed_at", models.StatusTherapistConfirmed, models.StatusInService); err != nil {
		return store.QueueSnapshot{}, err
	}
	if snapshot.Finished, err = s.listByStatus(ctx, "t.service_finish_at", models.StatusFinished); err != nil {
		return store.QueueSnapshot{}, err
	}
	if snapshot.PaymentAssigned, err = s.listByStatus(ctx, "t.cashier_claimed_at", models.StatusAwaitingPayment, models.StatusPaying); err != nil {
		return store.QueueSnapshot{}, err
	}
	if snapshot.Rooms, err = s.ListRooms(ctx); err != nil {
		return store.QueueSnapshot{}, err
	}
	if snapshot.Cashiers, err = s.listCashiers(ctx); err != nil {
		return store.QueueSnapshot{}, err
	}
	return snapshot, nil
}

func (s *Store) listByStatus(ctx context.Context, orderColumn string, statuses ...string) ([]models.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+txnColumns+`,
			th.name, c.name, c.counter_number
		FROM transactions t
		LEFT JOIN therapists th ON th.therapist_id = t.therapist_id
		LEFT JOIN cashiers c ON c.cashier_id = t.cashier_id
		WHERE t.status = ANY($1)
		ORDER BY `+orderColumn+` ASC
	`, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		txn, err := scanTransactionWithStaff(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachItems(ctx, s.pool, txns); err != nil {
		return nil, err
	}
	return txns, nil
}

func (s *Store) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT service_id, name, category, COALESCE(description, '')
		FROM services
		WHERE active = TRUE
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []models.Service
	index := make(map[string]int)
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(&svc.ServiceID, &svc.Name, &svc.Category, &svc.Description); err != nil {
			return nil, err
		}
		index[svc.ServiceID] = len(services)
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	variantRows, err := s.pool.Query(ctx, `
		SELECT v.variant_id, v.service_id, v.name, v.price, v.duration_minutes
		FROM service_variants v
		JOIN services s ON s.service_id = v.service_id
		WHERE s.active = TRUE
		ORDER BY v.name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer variantRows.Close()

	for variantRows.Next() {
		var variant models.ServiceVariant
		if err := variantRows.Scan(&variant.VariantID, &variant.ServiceID, &variant.Name, &variant.Price, &variant.DurationMinutes); err != nil {
			return nil, err
		}
		if i, ok := index[variant.ServiceID]; ok {
			services[i].Variants = append(services[i].Variants, variant)
		}
	}
	if err := variantRows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT room_id, room_number, status, current_transaction_id
		FROM rooms
		ORDER BY room_number ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		var txnNull sql.NullString
		if err := rows.Scan(&room.RoomID, &room.RoomNumber, &room.Status, &txnNull); err != nil {
			return nil, err
		}
		room.CurrentTransactionID = nullStringPtr(txnNull)
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (s *Store) UpdateRoomStatus(ctx context.Context, roomID, status string) (models.Room, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var room models.Room
	var txnNull sql.NullString
	query := `
		UPDATE rooms
		SET status = $1
		WHERE room_id = $2
		RETURNING room_id, room_number, status, current_transaction_id
	`
	if status == models.RoomAvailable {
		query = `
			UPDATE rooms
			SET status = $1, current_transaction_id = NULL
			WHERE room_id = $2
			RETURNING room_id, room_number, status, current_transaction_id
		`
	}
	row := tx.QueryRow(ctx, query, status, roomID)
	if err = row.Scan(&room.RoomID, &room.RoomNumber, &room.Status, &txnNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrRoomNotFound
		}
		return models.Room{}, err
	}
	room.CurrentTransactionID = nullStringPtr(txnNull)

	if err = insertOutboxEvent(ctx, tx, store.EventRoomStatusChanged, map[string]any{
		"room_id":     room.RoomID,
		"room_number": room.RoomNumber,
		"status":      room.Status,
	}); err != nil {
		return models.Room{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if after.LastEventTime.IsZero() {
		after.LastEventTime = time.Unix(0, 0).UTC()
	}
	if after.LastEventID == "" {
		after.LastEventID = zeroUUID
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, payload_json, created_at
		FROM outbox_events
		WHERE (created_at, event_id) > ($1, $2)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, after.LastEventTime, after.LastEventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetDispatchOffset(ctx context.Context) (store.OutboxOffset, error) {
	var offset store.OutboxOffset
	var idNull sql.NullString
	var timeNull sql.NullTime
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_time, last_event_id FROM dispatch_offsets WHERE id = 1
	`)
	if err := row.Scan(&timeNull, &idNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.OutboxOffset{}, nil
		}
		return store.OutboxOffset{}, err
	}
	if timeNull.Valid {
		offset.LastEventTime = timeNull.Time
	}
	if idNull.Valid {
		offset.LastEventID = idNull.String
	}
	return offset, nil
}

func (s *Store) UpdateDispatchOffset(ctx context.Context, offset store.OutboxOffset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispatch_offsets (id, last_event_time, last_event_id)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET last_event_time = $1, last_event_id = $2
	`, offset.LastEventTime, offset.LastEventID)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	var stationNull sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, staff_id, role, name, station, expires_at
		FROM sessions
		WHERE session_id = $1 AND expires_at > NOW()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.StaffID, &session.Role, &session.Name, &stationNull, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	if stationNull.Valid {
		session.Station = stationNull.String
	}
	return session, nil
}

func (s *Store) listCashiers(ctx context.Context) ([]models.Cashier, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT cashier_id, name, COALESCE(counter_number, ''), active
		FROM cashiers
		WHERE active = TRUE
		ORDER BY counter_number ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cashiers []models.Cashier
	for rows.Next() {
		var cashier models.Cashier
		if err := rows.Scan(&cashier.CashierID, &cashier.Name, &cashier.CounterNumber, &cashier.Active); err != nil {
			return nil, err
		}
		cashiers = append(cashiers, cashier)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cashiers, nil
}
