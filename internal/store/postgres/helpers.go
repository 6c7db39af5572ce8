package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"spa-system/internal/models"
	"spa-system/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func scanTransactionWithStaff(row rowScanner) (models.Transaction, error) {
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
	var therapistName sql.NullString
	var cashierName sql.NullString
	var counterNull sql.NullString
	if err := row.Scan(
		&txn.TransactionID, &codeNull, &txn.Status, &therapistNull, &roomNull, &cashierNull,
		&txn.TotalAmount, &txn.TotalDurationMinutes, &txn.CreatedAt, &selectionNull,
		&confirmedNull, &startNull, &finishNull, &claimedNull, &paidNull,
		&therapistName, &cashierName, &counterNull,
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
	if therapistName.Valid {
		txn.TherapistName = therapistName.String
	}
	if cashierName.Valid {
		txn.CashierName = cashierName.String
	}
	if counterNull.Valid {
		txn.CounterNumber = counterNull.String
	}
	return txn, nil
}

func findTransactionByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Transaction, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+txnColumns+`
		FROM transactions t
		WHERE t.request_id = $1
	`, requestID)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Transaction{}, false, nil
		}
		return models.Transaction{}, false, err
	}
	txn.RequestID = requestID
	if txn.Items, err = loadItems(ctx, tx, txn.TransactionID); err != nil {
		return models.Transaction{}, false, err
	}
	return txn, true, nil
}

// findActionRequest reports whether requestID was already processed for
// action. empty means the request was recorded without a transaction, which
// happens when a claim found the queue drained.
func findActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string) (models.Transaction, bool, bool, error) {
	var txnNull sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT transaction_id
		FROM action_requests
		WHERE request_id = $1 AND action = $2
	`, requestID, action)
	if err := row.Scan(&txnNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Transaction{}, false, false, nil
		}
		return models.Transaction{}, false, false, err
	}
	if !txnNull.Valid || txnNull.String == "" {
		return models.Transaction{}, true, true, nil
	}

	row = tx.QueryRow(ctx, `
		SELECT `+txnColumns+`,
			th.name, c.name, c.counter_number
		FROM transactions t
		LEFT JOIN therapists th ON th.therapist_id = t.therapist_id
		LEFT JOIN cashiers c ON c.cashier_id = t.cashier_id
		WHERE t.transaction_id = $1
	`, txnNull.String)
	txn, err := scanTransactionWithStaff(row)
	if err != nil {
		return models.Transaction{}, false, false, err
	}
	txn.RequestID = requestID
	if txn.Items, err = loadItems(ctx, tx, txn.TransactionID); err != nil {
		return models.Transaction{}, false, false, err
	}
	return txn, true, false, nil
}

func findPaymentRequest(ctx context.Context, tx pgx.Tx, requestID string) (models.Payment, bool, error) {
	var paymentNull sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT payment_id
		FROM action_requests
		WHERE request_id = $1 AND action = 'take_payment'
	`, requestID)
	if err := row.Scan(&paymentNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Payment{}, false, nil
		}
		return models.Payment{}, false, err
	}
	if !paymentNull.Valid || paymentNull.String == "" {
		return models.Payment{}, false, nil
	}

	var payment models.Payment
	row = tx.QueryRow(ctx, `
		SELECT payment_id, transaction_id, cashier_id, amount_due, amount_paid, change_amount, method, created_at
		FROM payments
		WHERE payment_id = $1
	`, paymentNull.String)
	if err := row.Scan(&payment.PaymentID, &payment.TransactionID, &payment.CashierID,
		&payment.AmountDue, &payment.AmountPaid, &payment.ChangeAmount, &payment.Method, &payment.CreatedAt); err != nil {
		return models.Payment{}, false, err
	}
	return payment, true, nil
}

func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID, transactionID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO action_requests (request_id, action, transaction_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_id) DO NOTHING
	`, requestID, action, nullIfEmpty(transactionID))
	return err
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, payload map[string]any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, NOW())
	`, uuid.NewString(), eventType, encoded)
	return err
}

func nextTransactionCode(ctx context.Context, tx pgx.Tx) (string, error) {
	var number int64
	row := tx.QueryRow(ctx, `
		INSERT INTO transaction_counter (id, next_number)
		VALUES (1, 2)
		ON CONFLICT (id) DO UPDATE SET next_number = transaction_counter.next_number + 1
		RETURNING next_number - 1
	`)
	if err := row.Scan(&number); err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codePad, number), nil
}

func resolveVariant(ctx context.Context, tx pgx.Tx, serviceID, variantID string) (models.ServiceVariant, string, error) {
	var variant models.ServiceVariant
	var serviceName string
	row := tx.QueryRow(ctx, `
		SELECT v.variant_id, v.service_id, v.name, v.price, v.duration_minutes, s.name
		FROM service_variants v
		JOIN services s ON s.service_id = v.service_id
		WHERE v.variant_id = $1 AND v.service_id = $2 AND s.active = TRUE
	`, variantID, serviceID)
	if err := row.Scan(&variant.VariantID, &variant.ServiceID, &variant.Name, &variant.Price, &variant.DurationMinutes, &serviceName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ServiceVariant{}, "", store.ErrServiceNotFound
		}
		return models.ServiceVariant{}, "", err
	}
	return variant, serviceName, nil
}

func insertItem(ctx context.Context, tx pgx.Tx, item models.TransactionItem) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transaction_items (item_id, transaction_id, service_id, variant_id, service_name, variant_name, price, duration_minutes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, item.ItemID, item.TransactionID, item.ServiceID, item.VariantID, item.ServiceName, item.VariantName, item.Price, item.DurationMinutes)
	return err
}

func loadItems(ctx context.Context, q querier, transactionID string) ([]models.TransactionItem, error) {
	rows, err := q.Query(ctx, `
		SELECT item_id, transaction_id, service_id, variant_id, service_name, variant_name, price, duration_minutes
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY service_name ASC, variant_name ASC
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.TransactionItem
	for rows.Next() {
		var item models.TransactionItem
		if err := rows.Scan(&item.ItemID, &item.TransactionID, &item.ServiceID, &item.VariantID,
			&item.ServiceName, &item.VariantName, &item.Price, &item.DurationMinutes); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func attachItems(ctx context.Context, q querier, txns []models.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	ids := make([]string, len(txns))
	index := make(map[string]int, len(txns))
	for i, txn := range txns {
		ids[i] = txn.TransactionID
		index[txn.TransactionID] = i
	}

	rows, err := q.Query(ctx, `
		SELECT item_id, transaction_id, service_id, variant_id, service_name, variant_name, price, duration_minutes
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY service_name ASC, variant_name ASC
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.TransactionItem
		if err := rows.Scan(&item.ItemID, &item.TransactionID, &item.ServiceID, &item.VariantID,
			&item.ServiceName, &item.VariantName, &item.Price, &item.DurationMinutes); err != nil {
			return err
		}
		if i, ok := index[item.TransactionID]; ok {
			txns[i].Items = append(txns[i].Items, item)
		}
	}
	return rows.Err()
}

func lockTransaction(ctx context.Context, tx pgx.Tx, transactionID string) (string, error) {
	var status string
	row := tx.QueryRow(ctx, `
		SELECT status FROM transactions WHERE transaction_id = $1 FOR UPDATE
	`, transactionID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrTransactionNotFound
		}
		return "", err
	}
	return status, nil
}

func transactionExists(ctx context.Context, tx pgx.Tx, transactionID string) (bool, error) {
	var exists bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE transaction_id = $1)
	`, transactionID)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func recomputeTotals(ctx context.Context, tx pgx.Tx, transactionID string) (models.Transaction, error) {
	row := tx.QueryRow(ctx, `
		UPDATE transactions t
		SET total_amount = ROUND(COALESCE((
				SELECT SUM(price) FROM transaction_items WHERE transaction_id = t.transaction_id
			), 0)::numeric, 2)::float8,
			total_duration_minutes = COALESCE((
				SELECT SUM(duration_minutes) FROM transaction_items WHERE transaction_id = t.transaction_id
			), 0)
		WHERE t.transaction_id = $1
		RETURNING `+txnColumns,
		transactionID)
	return scanTransaction(row)
}

func txnPayload(txn models.Transaction) map[string]any {
	items := make([]map[string]any, 0, len(txn.Items))
	for _, item := range txn.Items {
		items = append(items, map[string]any{
			"item_id":          item.ItemID,
			"service_id":       item.ServiceID,
			"variant_id":       item.VariantID,
			"service_name":     item.ServiceName,
			"variant_name":     item.VariantName,
			"price":            item.Price,
			"duration_minutes": item.DurationMinutes,
		})
	}
	payload := map[string]any{
		"transaction_id":         txn.TransactionID,
		"code":                   txn.Code,
		"status":                 txn.Status,
		"total_amount":           txn.TotalAmount,
		"total_duration_minutes": txn.TotalDurationMinutes,
		"created_at":             txn.CreatedAt,
		"items":                  items,
	}
	if txn.TherapistID != nil {
		payload["therapist_id"] = *txn.TherapistID
	}
	if txn.TherapistName != "" {
		payload["therapist_name"] = txn.TherapistName
	}
	if txn.RoomNumber != nil {
		payload["room_number"] = *txn.RoomNumber
	}
	if txn.CashierID != nil {
		payload["cashier_id"] = *txn.CashierID
	}
	if txn.CashierName != "" {
		payload["cashier_name"] = txn.CashierName
	}
	if txn.CounterNumber != "" {
		payload["counter_number"] = txn.CounterNumber
	}
	return payload
}
