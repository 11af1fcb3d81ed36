// Package postgres implements the storage interfaces backed by PostgreSQL.
// The schema lives in schema.sql next to this file.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/adhcode/howitworksapp/internal/domain/contract"
	"github.com/adhcode/howitworksapp/internal/domain/escrow"
	"github.com/adhcode/howitworksapp/internal/domain/payment"
	"github.com/adhcode/howitworksapp/internal/domain/reminder"
	"github.com/adhcode/howitworksapp/internal/domain/wallet"
	"github.com/adhcode/howitworksapp/internal/storage"
)

// Store implements the storage interfaces over a *sql.DB.
type Store struct {
	db *sql.DB
}

var _ storage.ContractStore = (*Store)(nil)
var _ storage.WalletStore = (*Store)(nil)
var _ storage.EscrowStore = (*Store)(nil)
var _ storage.PaymentStore = (*Store)(nil)
var _ storage.ReminderStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- ContractStore ----------------------------------------------------------

const contractColumns = `id, tenant_id, landlord_id, property_id, unit_id,
	monthly_amount, currency, payout_type, status, transition_start_date,
	next_payment_due, expiry_date, is_existing_tenant, original_expiry_date,
	created_at, updated_at`

func (s *Store) CreateContract(ctx context.Context, c contract.RentContract) (contract.RentContract, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	// The partial unique index on (tenant_id, property_id, unit_id) WHERE
	// status = 'active' backs the one-active-contract-per-tenancy invariant.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rent_contracts (`+contractColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, c.ID, c.TenantID, c.LandlordID, c.PropertyID, c.UnitID,
		c.MonthlyAmount, c.Currency, c.PayoutType, c.Status, c.TransitionStartDate,
		c.NextPaymentDue, c.ExpiryDate, c.IsExistingTenant, toNullTime(c.OriginalExpiryDate),
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return contract.RentContract{}, fmt.Errorf("active contract for tenant %s unit %s: %w",
				c.TenantID, c.UnitID, storage.ErrConflict)
		}
		return contract.RentContract{}, err
	}
	return c, nil
}

func (s *Store) UpdateContract(ctx context.Context, c contract.RentContract) (contract.RentContract, error) {
	c.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE rent_contracts
		SET monthly_amount = $2, payout_type = $3, status = $4,
			next_payment_due = $5, expiry_date = $6, updated_at = $7
		WHERE id = $1
	`, c.ID, c.MonthlyAmount, c.PayoutType, c.Status,
		c.NextPaymentDue, c.ExpiryDate, c.UpdatedAt)
	if err != nil {
		return contract.RentContract{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return contract.RentContract{}, fmt.Errorf("contract %s: %w", c.ID, storage.ErrNotFound)
	}
	return c, nil
}

func (s *Store) GetContract(ctx context.Context, id string) (contract.RentContract, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+contractColumns+`
		FROM rent_contracts
		WHERE id = $1
	`, id)
	return scanContract(row)
}

func (s *Store) ListContracts(ctx context.Context, f contract.Filter) ([]contract.RentContract, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contractColumns+`
		FROM rent_contracts
		WHERE ($1 = '' OR tenant_id = $1)
		  AND ($2 = '' OR landlord_id = $2)
		  AND ($3 = '' OR property_id = $3)
		  AND ($4 = '' OR status = $4)
		ORDER BY created_at DESC
	`, f.TenantID, f.LandlordID, f.PropertyID, string(f.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContracts(rows)
}

func (s *Store) GetActiveContract(ctx context.Context, tenantID, propertyID, unitID string) (contract.RentContract, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+contractColumns+`
		FROM rent_contracts
		WHERE tenant_id = $1 AND property_id = $2 AND unit_id = $3 AND status = 'active'
		LIMIT 1
	`, tenantID, propertyID, unitID)
	return scanContract(row)
}

func (s *Store) ListActiveContracts(ctx context.Context) ([]contract.RentContract, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contractColumns+`
		FROM rent_contracts
		WHERE status = 'active'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContracts(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (contract.RentContract, error) {
	var (
		c              contract.RentContract
		originalExpiry sql.NullTime
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.LandlordID, &c.PropertyID, &c.UnitID,
		&c.MonthlyAmount, &c.Currency, &c.PayoutType, &c.Status, &c.TransitionStartDate,
		&c.NextPaymentDue, &c.ExpiryDate, &c.IsExistingTenant, &originalExpiry,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.RentContract{}, fmt.Errorf("contract: %w", storage.ErrNotFound)
	}
	if err != nil {
		return contract.RentContract{}, err
	}
	if originalExpiry.Valid {
		c.OriginalExpiryDate = originalExpiry.Time.UTC()
	}
	return c, nil
}

func scanContracts(rows *sql.Rows) ([]contract.RentContract, error) {
	var result []contract.RentContract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// --- WalletStore ------------------------------------------------------------

func (s *Store) GetWallet(ctx context.Context, landlordID string) (wallet.Balance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT landlord_id, available_balance, pending_balance, total_earned,
			total_withdrawn, currency, created_at, updated_at
		FROM wallet_balances
		WHERE landlord_id = $1
	`, landlordID)

	var b wallet.Balance
	err := row.Scan(&b.LandlordID, &b.AvailableBalance, &b.PendingBalance,
		&b.TotalEarned, &b.TotalWithdrawn, &b.Currency, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return wallet.Balance{}, fmt.Errorf("wallet %s: %w", landlordID, storage.ErrNotFound)
	}
	if err != nil {
		return wallet.Balance{}, err
	}
	return b, nil
}

func (s *Store) CreateWallet(ctx context.Context, b wallet.Balance) (wallet.Balance, error) {
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_balances (landlord_id, available_balance, pending_balance,
			total_earned, total_withdrawn, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, b.LandlordID, b.AvailableBalance, b.PendingBalance,
		b.TotalEarned, b.TotalWithdrawn, b.Currency, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return wallet.Balance{}, fmt.Errorf("wallet %s: %w", b.LandlordID, storage.ErrConflict)
		}
		return wallet.Balance{}, err
	}
	return b, nil
}

// UpdateWalletBalance is the lost-update guard: the write only lands when the
// stored available balance still matches what the caller read.
func (s *Store) UpdateWalletBalance(ctx context.Context, b wallet.Balance, expectedAvailable decimal.Decimal) (wallet.Balance, error) {
	b.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE wallet_balances
		SET available_balance = $2, pending_balance = $3, total_earned = $4,
			total_withdrawn = $5, updated_at = $6
		WHERE landlord_id = $1 AND available_balance = $7
	`, b.LandlordID, b.AvailableBalance, b.PendingBalance, b.TotalEarned,
		b.TotalWithdrawn, b.UpdatedAt, expectedAvailable)
	if err != nil {
		return wallet.Balance{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return wallet.Balance{}, fmt.Errorf("wallet %s balance moved: %w", b.LandlordID, storage.ErrConflict)
	}
	return b, nil
}

func (s *Store) CreateWalletTransaction(ctx context.Context, tx wallet.Transaction) (wallet.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.CreatedAt = time.Now().UTC()

	metadataJSON, err := json.Marshal(tx.Metadata)
	if err != nil {
		return wallet.Transaction{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, landlord_id, type, amount,
			balance_before, balance_after, reference, status, description,
			metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, tx.ID, tx.LandlordID, tx.Type, tx.Amount,
		tx.BalanceBefore, tx.BalanceAfter, tx.Reference, tx.Status, tx.Description,
		metadataJSON, tx.CreatedAt)
	if err != nil {
		return wallet.Transaction{}, err
	}
	return tx, nil
}

func (s *Store) ListWalletTransactions(ctx context.Context, landlordID string, limit, offset int) ([]wallet.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, landlord_id, type, amount, balance_before, balance_after,
			reference, status, description, metadata, created_at
		FROM wallet_transactions
		WHERE landlord_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, landlordID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []wallet.Transaction
	for rows.Next() {
		var (
			tx          wallet.Transaction
			metadataRaw []byte
		)
		if err := rows.Scan(&tx.ID, &tx.LandlordID, &tx.Type, &tx.Amount,
			&tx.BalanceBefore, &tx.BalanceAfter, &tx.Reference, &tx.Status,
			&tx.Description, &metadataRaw, &tx.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadataRaw) > 0 {
			_ = json.Unmarshal(metadataRaw, &tx.Metadata)
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

// --- EscrowStore ------------------------------------------------------------

const escrowColumns = `id, landlord_id, contract_id, total_escrowed,
	months_accumulated, expected_release_date, is_released, released_at,
	released_amount, created_at, updated_at`

func (s *Store) CreateEscrow(ctx context.Context, b escrow.Balance) (escrow.Balance, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	// The partial unique index on (contract_id) WHERE NOT is_released keeps
	// concurrent first payments from opening two buckets.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escrow_balances (`+escrowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, b.ID, b.LandlordID, b.ContractID, b.TotalEscrowed,
		b.MonthsAccumulated, b.ExpectedReleaseDate, b.IsReleased, toNullTime(b.ReleasedAt),
		b.ReleasedAmount, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return escrow.Balance{}, fmt.Errorf("open escrow for contract %s: %w", b.ContractID, storage.ErrConflict)
		}
		return escrow.Balance{}, err
	}
	return b, nil
}

// UpdateEscrow is the escrow counterpart of UpdateWalletBalance: the write
// only lands while the balance is still open with the month count the caller
// read.
func (s *Store) UpdateEscrow(ctx context.Context, b escrow.Balance, expectedMonths int) (escrow.Balance, error) {
	b.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE escrow_balances
		SET total_escrowed = $2, months_accumulated = $3, expected_release_date = $4,
			is_released = $5, released_at = $6, released_amount = $7, updated_at = $8
		WHERE id = $1 AND NOT is_released AND months_accumulated = $9
	`, b.ID, b.TotalEscrowed, b.MonthsAccumulated, b.ExpectedReleaseDate,
		b.IsReleased, toNullTime(b.ReleasedAt), b.ReleasedAmount, b.UpdatedAt, expectedMonths)
	if err != nil {
		return escrow.Balance{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, getErr := s.GetEscrow(ctx, b.ID); getErr != nil {
			return escrow.Balance{}, getErr
		}
		return escrow.Balance{}, fmt.Errorf("escrow %s moved: %w", b.ID, storage.ErrConflict)
	}
	return b, nil
}

func (s *Store) GetEscrow(ctx context.Context, id string) (escrow.Balance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+escrowColumns+`
		FROM escrow_balances
		WHERE id = $1
	`, id)
	return scanEscrow(row)
}

func (s *Store) GetOpenEscrowByContract(ctx context.Context, contractID string) (escrow.Balance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+escrowColumns+`
		FROM escrow_balances
		WHERE contract_id = $1 AND NOT is_released
		LIMIT 1
	`, contractID)
	return scanEscrow(row)
}

func (s *Store) ListOpenEscrows(ctx context.Context) ([]escrow.Balance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+escrowColumns+`
		FROM escrow_balances
		WHERE NOT is_released
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscrows(rows)
}

func (s *Store) ListEscrowsByLandlord(ctx context.Context, landlordID string) ([]escrow.Balance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+escrowColumns+`
		FROM escrow_balances
		WHERE landlord_id = $1
		ORDER BY created_at DESC
	`, landlordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscrows(rows)
}

func scanEscrow(row rowScanner) (escrow.Balance, error) {
	var (
		b          escrow.Balance
		releasedAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.LandlordID, &b.ContractID, &b.TotalEscrowed,
		&b.MonthsAccumulated, &b.ExpectedReleaseDate, &b.IsReleased, &releasedAt,
		&b.ReleasedAmount, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return escrow.Balance{}, fmt.Errorf("escrow: %w", storage.ErrNotFound)
	}
	if err != nil {
		return escrow.Balance{}, err
	}
	if releasedAt.Valid {
		b.ReleasedAt = releasedAt.Time.UTC()
	}
	return b, nil
}

func scanEscrows(rows *sql.Rows) ([]escrow.Balance, error) {
	var result []escrow.Balance
	for rows.Next() {
		b, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// --- PaymentStore -----------------------------------------------------------

const paymentColumns = `id, contract_id, tenant_id, landlord_id, property_id,
	unit_id, amount, amount_paid, due_date, paid_date, status, payment_method,
	external_reference, created_at, updated_at`

func (s *Store) CreatePayment(ctx context.Context, rec payment.Record) (payment.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_records (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, rec.ID, rec.ContractID, rec.TenantID, rec.LandlordID, rec.PropertyID,
		rec.UnitID, rec.Amount, rec.AmountPaid, rec.DueDate, toNullTime(rec.PaidDate),
		rec.Status, rec.PaymentMethod, rec.ExternalReference, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return payment.Record{}, fmt.Errorf("payment reference %s: %w", rec.ExternalReference, storage.ErrConflict)
		}
		return payment.Record{}, err
	}
	return rec, nil
}

func (s *Store) UpdatePayment(ctx context.Context, rec payment.Record) (payment.Record, error) {
	rec.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_records
		SET amount_paid = $2, paid_date = $3, status = $4, payment_method = $5,
			updated_at = $6
		WHERE id = $1
	`, rec.ID, rec.AmountPaid, toNullTime(rec.PaidDate), rec.Status,
		rec.PaymentMethod, rec.UpdatedAt)
	if err != nil {
		return payment.Record{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return payment.Record{}, fmt.Errorf("payment %s: %w", rec.ID, storage.ErrNotFound)
	}
	return rec, nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (payment.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_records
		WHERE id = $1
	`, id)
	return scanPayment(row)
}

func (s *Store) GetPaymentByReference(ctx context.Context, reference string) (payment.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_records
		WHERE external_reference = $1
	`, strings.TrimSpace(reference))
	return scanPayment(row)
}

func (s *Store) ListPaymentsByContract(ctx context.Context, contractID string) ([]payment.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_records
		WHERE contract_id = $1
		ORDER BY created_at DESC
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPayments(rows)
}

func (s *Store) ListPendingPaymentsBefore(ctx context.Context, cutoff time.Time) ([]payment.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payment_records
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPayments(rows)
}

func scanPayment(row rowScanner) (payment.Record, error) {
	var (
		rec      payment.Record
		paidDate sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.ContractID, &rec.TenantID, &rec.LandlordID,
		&rec.PropertyID, &rec.UnitID, &rec.Amount, &rec.AmountPaid, &rec.DueDate,
		&paidDate, &rec.Status, &rec.PaymentMethod, &rec.ExternalReference,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return payment.Record{}, fmt.Errorf("payment: %w", storage.ErrNotFound)
	}
	if err != nil {
		return payment.Record{}, err
	}
	if paidDate.Valid {
		rec.PaidDate = paidDate.Time.UTC()
	}
	return rec, nil
}

func scanPayments(rows *sql.Rows) ([]payment.Record, error) {
	var result []payment.Record
	for rows.Next() {
		rec, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// --- ReminderStore ----------------------------------------------------------

func (s *Store) CreateReminderDispatch(ctx context.Context, d reminder.Dispatch) (reminder.Dispatch, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.SentAt.IsZero() {
		d.SentAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminder_dispatches (id, contract_id, kind, due_date, days_overdue, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.ContractID, d.Kind, d.DueDate, d.DaysOverdue, d.SentAt)
	if err != nil {
		return reminder.Dispatch{}, err
	}
	return d, nil
}

func (s *Store) HasReminderDispatch(ctx context.Context, contractID string, kind reminder.Kind, dueDate time.Time) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reminder_dispatches
			WHERE contract_id = $1 AND kind = $2 AND due_date::date = $3::date
		)
	`, contractID, kind, dueDate)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// --- helpers ----------------------------------------------------------------

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	// 23505 unique_violation
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
