// internal/repository/postgres/payment_method_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"propdesk-service/internal/domain/billing"
	xerrors "propdesk-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

var paymentMethodColumns = []string{
	"id", "account_id", "type", "is_default", "is_active", "nickname",
	"encrypted_card_number", "encrypted_expiry_month", "encrypted_expiry_year", "encrypted_cvv",
	"cardholder_name", "last_four_digits", "brand",
	"encrypted_account_number", "encrypted_routing_number", "account_holder_name",
	"bank_name", "account_type", "account_last_four", "routing_last_four",
	"created_at", "updated_at",
}

// methodColumns renders the payment_methods select list, optionally table-qualified.
func methodColumns(alias string) string {
	if alias == "" {
		return strings.Join(paymentMethodColumns, ", ")
	}
	cols := make([]string, len(paymentMethodColumns))
	for i, c := range paymentMethodColumns {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// methodRow mirrors one payment_methods row. Every field is nullable so the same shape
// scans a LEFT JOIN with no match.
type methodRow struct {
	ID, AccountID                                           sql.NullInt64
	Type, Nickname                                          sql.NullString
	IsDefault, IsActive                                     sql.NullBool
	CardNumber, ExpiryMonth, ExpiryYear, CVV                sql.NullString
	CardholderName, LastFour, Brand                         sql.NullString
	AccountNumber, RoutingNumber, HolderName                sql.NullString
	BankName, AccountType, AccountLastFour, RoutingLastFour sql.NullString
	CreatedAt, UpdatedAt                                    sql.NullTime
}

func (m *methodRow) dest() []any {
	return []any{
		&m.ID, &m.AccountID, &m.Type, &m.IsDefault, &m.IsActive, &m.Nickname,
		&m.CardNumber, &m.ExpiryMonth, &m.ExpiryYear, &m.CVV,
		&m.CardholderName, &m.LastFour, &m.Brand,
		&m.AccountNumber, &m.RoutingNumber, &m.HolderName,
		&m.BankName, &m.AccountType, &m.AccountLastFour, &m.RoutingLastFour,
		&m.CreatedAt, &m.UpdatedAt,
	}
}

// toDomain returns nil for an empty outer-join row.
func (m *methodRow) toDomain() *billing.PaymentMethod {
	if !m.ID.Valid {
		return nil
	}
	pm := &billing.PaymentMethod{
		ID:        m.ID.Int64,
		AccountID: m.AccountID.Int64,
		Type:      billing.PaymentMethodType(m.Type.String),
		IsDefault: m.IsDefault.Bool,
		IsActive:  m.IsActive.Bool,
		Nickname:  m.Nickname.String,
		CreatedAt: m.CreatedAt.Time,
		UpdatedAt: m.UpdatedAt.Time,
	}
	switch pm.Type {
	case billing.PaymentMethodCard:
		pm.Card = &billing.CardDetails{
			EncryptedNumber:      m.CardNumber.String,
			EncryptedExpiryMonth: m.ExpiryMonth.String,
			EncryptedExpiryYear:  m.ExpiryYear.String,
			EncryptedCVV:         m.CVV.String,
			CardholderName:       m.CardholderName.String,
			LastFour:             m.LastFour.String,
			Brand:                m.Brand.String,
		}
	case billing.PaymentMethodBankAccount:
		pm.BankAccount = &billing.BankAccountDetails{
			EncryptedAccountNumber: m.AccountNumber.String,
			EncryptedRoutingNumber: m.RoutingNumber.String,
			AccountHolderName:      m.HolderName.String,
			BankName:               m.BankName.String,
			AccountType:            m.AccountType.String,
			AccountLastFour:        m.AccountLastFour.String,
			RoutingLastFour:        m.RoutingLastFour.String,
		}
	}
	return pm
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type PaymentMethodRepository struct {
	db *DB
}

func NewPaymentMethodRepository(db *DB) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

func (r *PaymentMethodRepository) Create(ctx context.Context, pm *billing.PaymentMethod, makeDefault bool) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockAccount(ctx, tx, pm.AccountID); err != nil {
		return err
	}

	if !makeDefault {
		var active int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM payment_methods WHERE account_id = $1 AND is_active`,
			pm.AccountID,
		).Scan(&active); err != nil {
			return fmt.Errorf("failed to count payment methods: %w", err)
		}
		makeDefault = active == 0
	}
	if makeDefault {
		if err := clearDefaults(ctx, tx, pm.AccountID); err != nil {
			return err
		}
	}

	var card billing.CardDetails
	var bank billing.BankAccountDetails
	if pm.Card != nil {
		card = *pm.Card
	}
	if pm.BankAccount != nil {
		bank = *pm.BankAccount
	}

	query := `
		INSERT INTO payment_methods (
			account_id, type, is_default, is_active, nickname,
			encrypted_card_number, encrypted_expiry_month, encrypted_expiry_year, encrypted_cvv,
			cardholder_name, last_four_digits, brand,
			encrypted_account_number, encrypted_routing_number, account_holder_name,
			bank_name, account_type, account_last_four, routing_last_four
		) VALUES ($1, $2, $3, TRUE, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		pm.AccountID, pm.Type, makeDefault, nullable(pm.Nickname),
		nullable(card.EncryptedNumber), nullable(card.EncryptedExpiryMonth), nullable(card.EncryptedExpiryYear), nullable(card.EncryptedCVV),
		nullable(card.CardholderName), nullable(card.LastFour), nullable(card.Brand),
		nullable(bank.EncryptedAccountNumber), nullable(bank.EncryptedRoutingNumber), nullable(bank.AccountHolderName),
		nullable(bank.BankName), nullable(bank.AccountType), nullable(bank.AccountLastFour), nullable(bank.RoutingLastFour),
	).Scan(&pm.ID, &pm.CreatedAt, &pm.UpdatedAt)
	if err != nil {
		return mapWriteError("failed to create payment method", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit payment method: %w", err)
	}
	pm.IsActive = true
	pm.IsDefault = makeDefault
	return nil
}

func (r *PaymentMethodRepository) FindByID(ctx context.Context, accountID, id int64) (*billing.PaymentMethod, error) {
	query := `SELECT ` + methodColumns("") + `
		FROM payment_methods
		WHERE id = $1 AND account_id = $2 AND is_active`
	return r.findOne(ctx, query, id, accountID)
}

func (r *PaymentMethodRepository) FindDefault(ctx context.Context, accountID int64) (*billing.PaymentMethod, error) {
	query := `SELECT ` + methodColumns("") + `
		FROM payment_methods
		WHERE account_id = $1 AND is_default AND is_active`
	return r.findOne(ctx, query, accountID)
}

func (r *PaymentMethodRepository) findOne(ctx context.Context, query string, args ...any) (*billing.PaymentMethod, error) {
	var row methodRow
	err := r.db.Pool().QueryRow(ctx, query, args...).Scan(row.dest()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment method: %w", err)
	}
	return row.toDomain(), nil
}

func (r *PaymentMethodRepository) ListActive(ctx context.Context, accountID int64) ([]billing.PaymentMethod, error) {
	query := `SELECT ` + methodColumns("") + `
		FROM payment_methods
		WHERE account_id = $1 AND is_active
		ORDER BY is_default DESC, id DESC`

	rows, err := r.db.Pool().Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	defer rows.Close()

	methods := []billing.PaymentMethod{}
	for rows.Next() {
		var row methodRow
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		methods = append(methods, *row.toDomain())
	}
	return methods, rows.Err()
}

func (r *PaymentMethodRepository) SetDefault(ctx context.Context, accountID, id int64) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockAccount(ctx, tx, accountID); err != nil {
		return err
	}
	if _, err := ownedActiveDefault(ctx, tx, accountID, id); err != nil {
		return err
	}
	if err := clearDefaults(ctx, tx, accountID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE payment_methods SET is_default = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now(), id,
	); err != nil {
		return mapWriteError("failed to set default payment method", err)
	}

	return tx.Commit(ctx)
}

func (r *PaymentMethodRepository) Deactivate(ctx context.Context, accountID, id int64) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockAccount(ctx, tx, accountID); err != nil {
		return err
	}
	wasDefault, err := ownedActiveDefault(ctx, tx, accountID, id)
	if err != nil {
		return err
	}

	now := time.Now()
	if _, err := tx.Exec(ctx,
		`UPDATE payment_methods SET is_active = FALSE, is_default = FALSE, updated_at = $1 WHERE id = $2`,
		now, id,
	); err != nil {
		return fmt.Errorf("failed to deactivate payment method: %w", err)
	}

	if wasDefault {
		promote := `
			UPDATE payment_methods SET is_default = TRUE, updated_at = $1
			WHERE id = (
				SELECT id FROM payment_methods
				WHERE account_id = $2 AND is_active
				ORDER BY id DESC
				LIMIT 1
			)
		`
		if _, err := tx.Exec(ctx, promote, now, accountID); err != nil {
			return mapWriteError("failed to promote payment method", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PaymentMethodRepository) UpdateNickname(ctx context.Context, accountID, id int64, nickname string) error {
	query := `
		UPDATE payment_methods SET nickname = $1, updated_at = $2
		WHERE id = $3 AND account_id = $4 AND is_active
	`
	result, err := r.db.Pool().Exec(ctx, query, nullable(nickname), time.Now(), id, accountID)
	if err != nil {
		return fmt.Errorf("failed to update nickname: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func ownedActiveDefault(ctx context.Context, tx pgx.Tx, accountID, id int64) (bool, error) {
	var isDefault bool
	err := tx.QueryRow(ctx,
		`SELECT is_default FROM payment_methods WHERE id = $1 AND account_id = $2 AND is_active`,
		id, accountID,
	).Scan(&isDefault)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, xerrors.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to get payment method: %w", err)
	}
	return isDefault, nil
}

func clearDefaults(ctx context.Context, tx pgx.Tx, accountID int64) error {
	_, err := tx.Exec(ctx,
		`UPDATE payment_methods SET is_default = FALSE, updated_at = $1 WHERE account_id = $2 AND is_default`,
		time.Now(), accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear default payment method: %w", err)
	}
	return nil
}
