package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/stwalsh4118/daysteward/internal/models"
)

// SQLiteStore keeps the ledger in a SQLite file. The handle from
// database.OpenSQLite has a single connection, so transactions never overlap.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over a handle opened by database.OpenSQLite.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, false, fn)
}

// View rejects writes itself; the driver's transactions are always read-write.
func (s *SQLiteStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *SQLiteStore) run(ctx context.Context, readOnly bool, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&sqliteTx{tx: tx, readOnly: readOnly}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *sqliteTx) exec(ctx context.Context, query string, args ...interface{}) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.ExecContext(ctx, query, args...)
	return err
}

func (t *sqliteTx) Parcel(ctx context.Context, id int) (*models.Parcel, error) {
	var p models.Parcel
	var price models.Wei
	var lastCollected int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, month, day, price, last_collected, minted, foreclosed
		FROM parcels WHERE id = ?`, id).
		Scan(&p.ID, &p.Month, &p.Day, &price, &lastCollected, &p.Minted, &p.Foreclosed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query parcel %d: %w", id, err)
	}
	p.Price = price.Int()
	p.LastCollected = time.Unix(0, lastCollected).UTC()
	return &p, nil
}

func (t *sqliteTx) PutParcel(ctx context.Context, p *models.Parcel) error {
	err := t.exec(ctx, `
		INSERT INTO parcels (id, month, day, price, last_collected, minted, foreclosed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			price = excluded.price,
			last_collected = excluded.last_collected,
			minted = excluded.minted,
			foreclosed = excluded.foreclosed`,
		p.ID, p.Month, p.Day, models.NewWei(p.Price), p.LastCollected.UnixNano(), p.Minted, p.Foreclosed)
	if err != nil {
		return fmt.Errorf("failed to save parcel %d: %w", p.ID, err)
	}
	return nil
}

func (t *sqliteTx) Token(ctx context.Context, id int) (*models.Token, error) {
	var tok models.Token
	err := t.tx.QueryRowContext(ctx, `SELECT id, owner, name FROM tokens WHERE id = ?`, id).
		Scan(&tok.ID, &tok.Owner, &tok.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query token %d: %w", id, err)
	}
	return &tok, nil
}

func (t *sqliteTx) PutToken(ctx context.Context, tok *models.Token) error {
	err := t.exec(ctx, `
		INSERT INTO tokens (id, owner, name) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET owner = excluded.owner, name = excluded.name`,
		tok.ID, tok.Owner, tok.Name)
	if err != nil {
		return fmt.Errorf("failed to save token %d: %w", tok.ID, err)
	}
	return nil
}

func (t *sqliteTx) TokensOf(ctx context.Context, owner string) ([]int, error) {
	return t.queryIDs(ctx, `SELECT id FROM tokens WHERE owner = ? ORDER BY id`, owner)
}

func (t *sqliteTx) HeldTokens(ctx context.Context, exclude string) ([]int, error) {
	return t.queryIDs(ctx, `SELECT id FROM tokens WHERE owner <> ? ORDER BY id`, exclude)
}

func (t *sqliteTx) queryIDs(ctx context.Context, query string, arg string) ([]int, error) {
	rows, err := t.tx.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query token ids: %w", err)
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan token id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating token ids: %w", err)
	}
	return ids, nil
}

func (t *sqliteTx) Deposit(ctx context.Context, owner string) (*big.Int, error) {
	return t.amount(ctx, `SELECT amount FROM deposits WHERE owner = ?`, owner)
}

func (t *sqliteTx) PutDeposit(ctx context.Context, owner string, amount *big.Int) error {
	err := t.exec(ctx, `
		INSERT INTO deposits (owner, amount) VALUES (?, ?)
		ON CONFLICT (owner) DO UPDATE SET amount = excluded.amount`,
		owner, models.NewWei(amount))
	if err != nil {
		return fmt.Errorf("failed to save deposit for %s: %w", owner, err)
	}
	return nil
}

func (t *sqliteTx) Balance(ctx context.Context, name string) (*big.Int, error) {
	return t.amount(ctx, `SELECT amount FROM balances WHERE name = ?`, name)
}

func (t *sqliteTx) PutBalance(ctx context.Context, name string, amount *big.Int) error {
	err := t.exec(ctx, `
		INSERT INTO balances (name, amount) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET amount = excluded.amount`,
		name, models.NewWei(amount))
	if err != nil {
		return fmt.Errorf("failed to save balance %s: %w", name, err)
	}
	return nil
}

func (t *sqliteTx) amount(ctx context.Context, query string, key string) (*big.Int, error) {
	var w models.Wei
	if err := t.tx.QueryRowContext(ctx, query, key).Scan(&w); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("failed to query amount for %s: %w", key, err)
	}
	return w.Int(), nil
}

func (t *sqliteTx) Settings(ctx context.Context) (*models.Settings, error) {
	var s models.Settings
	var mintPrice, minDeposit models.Wei
	err := t.tx.QueryRowContext(ctx, `
		SELECT admin, beneficiary, legacy_token, legacy_epoch, tax_numerator, tax_denominator, mint_price, min_deposit
		FROM settings WHERE id = 1`).
		Scan(&s.Admin, &s.Beneficiary, &s.LegacyToken, &s.LegacyEpoch, &s.TaxNumerator, &s.TaxDenominator, &mintPrice, &minDeposit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	s.MintPrice = mintPrice.Int()
	s.MinDeposit = minDeposit.Int()
	return &s, nil
}

func (t *sqliteTx) PutSettings(ctx context.Context, s *models.Settings) error {
	err := t.exec(ctx, `
		INSERT INTO settings (id, admin, beneficiary, legacy_token, legacy_epoch, tax_numerator, tax_denominator, mint_price, min_deposit)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			admin = excluded.admin,
			beneficiary = excluded.beneficiary,
			legacy_token = excluded.legacy_token,
			legacy_epoch = excluded.legacy_epoch,
			tax_numerator = excluded.tax_numerator,
			tax_denominator = excluded.tax_denominator,
			mint_price = excluded.mint_price,
			min_deposit = excluded.min_deposit`,
		s.Admin, s.Beneficiary, s.LegacyToken, s.LegacyEpoch, s.TaxNumerator, s.TaxDenominator,
		models.NewWei(s.MintPrice), models.NewWei(s.MinDeposit))
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func (t *sqliteTx) AddPayout(ctx context.Context, p *models.Payout) error {
	err := t.exec(ctx, `
		INSERT INTO payouts (id, recipient, amount, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.To, models.NewWei(p.Amount), p.Reason, p.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record payout %s: %w", p.ID, err)
	}
	return nil
}

func (t *sqliteTx) Payouts(ctx context.Context) ([]models.Payout, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, recipient, amount, reason, created_at FROM payouts ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query payouts: %w", err)
	}
	defer rows.Close()

	payouts := []models.Payout{}
	for rows.Next() {
		var p models.Payout
		var amount models.Wei
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.To, &amount, &p.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan payout row: %w", err)
		}
		p.Amount = amount.Int()
		p.CreatedAt = time.Unix(0, createdAt).UTC()
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payout rows: %w", err)
	}
	return payouts, nil
}
