package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stwalsh4118/daysteward/internal/database"
	"github.com/stwalsh4118/daysteward/internal/models"
)

// stewardLockKey is the advisory lock every write transaction takes, which
// serialises ledger updates across all API replicas.
const stewardLockKey = 0x5354455700

// PostgresStore keeps the ledger in PostgreSQL.
type PostgresStore struct {
	db *database.Database
}

// NewPostgresStore creates a store over an open pool. The schema must already
// be migrated.
func NewPostgresStore(db *database.Database) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.db.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(stewardLockKey)); err != nil {
			return fmt.Errorf("failed to acquire steward lock: %w", err)
		}
		return fn(&pgTx{tx: tx})
	})
}

func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	opts := pgx.TxOptions{AccessMode: pgx.ReadOnly}
	return pgx.BeginTxFunc(ctx, s.db.Pool, opts, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Parcel(ctx context.Context, id int) (*models.Parcel, error) {
	query := `
		SELECT id, month, day, price::text, last_collected, minted, foreclosed
		FROM parcels
		WHERE id = $1
	`

	var p models.Parcel
	var price models.Wei
	var lastCollected int64
	err := t.tx.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Month,
		&p.Day,
		&price,
		&lastCollected,
		&p.Minted,
		&p.Foreclosed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query parcel %d: %w", id, err)
	}
	p.Price = price.Int()
	p.LastCollected = time.Unix(0, lastCollected).UTC()
	return &p, nil
}

func (t *pgTx) PutParcel(ctx context.Context, p *models.Parcel) error {
	query := `
		INSERT INTO parcels (id, month, day, price, last_collected, minted, foreclosed)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			price = EXCLUDED.price,
			last_collected = EXCLUDED.last_collected,
			minted = EXCLUDED.minted,
			foreclosed = EXCLUDED.foreclosed
	`
	_, err := t.tx.Exec(ctx, query,
		p.ID, p.Month, p.Day, p.Price.String(), p.LastCollected.UnixNano(), p.Minted, p.Foreclosed)
	if err != nil {
		return fmt.Errorf("failed to save parcel %d: %w", p.ID, err)
	}
	return nil
}

func (t *pgTx) Token(ctx context.Context, id int) (*models.Token, error) {
	var tok models.Token
	err := t.tx.QueryRow(ctx, `SELECT id, owner, name FROM tokens WHERE id = $1`, id).
		Scan(&tok.ID, &tok.Owner, &tok.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query token %d: %w", id, err)
	}
	return &tok, nil
}

func (t *pgTx) PutToken(ctx context.Context, tok *models.Token) error {
	query := `
		INSERT INTO tokens (id, owner, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET owner = EXCLUDED.owner, name = EXCLUDED.name
	`
	if _, err := t.tx.Exec(ctx, query, tok.ID, tok.Owner, tok.Name); err != nil {
		return fmt.Errorf("failed to save token %d: %w", tok.ID, err)
	}
	return nil
}

func (t *pgTx) TokensOf(ctx context.Context, owner string) ([]int, error) {
	return t.queryIDs(ctx, `SELECT id FROM tokens WHERE owner = $1 ORDER BY id`, owner)
}

func (t *pgTx) HeldTokens(ctx context.Context, exclude string) ([]int, error) {
	return t.queryIDs(ctx, `SELECT id FROM tokens WHERE owner <> $1 ORDER BY id`, exclude)
}

func (t *pgTx) queryIDs(ctx context.Context, query string, arg string) ([]int, error) {
	rows, err := t.tx.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query token ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("failed to scan token ids: %w", err)
	}
	if ids == nil {
		ids = []int{}
	}
	return ids, nil
}

func (t *pgTx) Deposit(ctx context.Context, owner string) (*big.Int, error) {
	return t.amount(ctx, `SELECT amount::text FROM deposits WHERE owner = $1`, owner)
}

func (t *pgTx) PutDeposit(ctx context.Context, owner string, amount *big.Int) error {
	query := `
		INSERT INTO deposits (owner, amount) VALUES ($1, $2::text::numeric)
		ON CONFLICT (owner) DO UPDATE SET amount = EXCLUDED.amount
	`
	if _, err := t.tx.Exec(ctx, query, owner, amount.String()); err != nil {
		return fmt.Errorf("failed to save deposit for %s: %w", owner, err)
	}
	return nil
}

func (t *pgTx) Balance(ctx context.Context, name string) (*big.Int, error) {
	return t.amount(ctx, `SELECT amount::text FROM balances WHERE name = $1`, name)
}

func (t *pgTx) PutBalance(ctx context.Context, name string, amount *big.Int) error {
	query := `
		INSERT INTO balances (name, amount) VALUES ($1, $2::text::numeric)
		ON CONFLICT (name) DO UPDATE SET amount = EXCLUDED.amount
	`
	if _, err := t.tx.Exec(ctx, query, name, amount.String()); err != nil {
		return fmt.Errorf("failed to save balance %s: %w", name, err)
	}
	return nil
}

// amount reads a single NUMERIC column; a missing row is zero.
func (t *pgTx) amount(ctx context.Context, query string, key string) (*big.Int, error) {
	var w models.Wei
	err := t.tx.QueryRow(ctx, query, key).Scan(&w)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("failed to query amount for %s: %w", key, err)
	}
	return w.Int(), nil
}

func (t *pgTx) Settings(ctx context.Context) (*models.Settings, error) {
	query := `
		SELECT admin, beneficiary, legacy_token, legacy_epoch, tax_numerator,
			tax_denominator, mint_price::text, min_deposit::text
		FROM settings
		WHERE id = 1
	`

	var s models.Settings
	var mintPrice, minDeposit models.Wei
	err := t.tx.QueryRow(ctx, query).Scan(
		&s.Admin,
		&s.Beneficiary,
		&s.LegacyToken,
		&s.LegacyEpoch,
		&s.TaxNumerator,
		&s.TaxDenominator,
		&mintPrice,
		&minDeposit,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	s.MintPrice = mintPrice.Int()
	s.MinDeposit = minDeposit.Int()
	return &s, nil
}

func (t *pgTx) PutSettings(ctx context.Context, s *models.Settings) error {
	query := `
		INSERT INTO settings (id, admin, beneficiary, legacy_token, legacy_epoch,
			tax_numerator, tax_denominator, mint_price, min_deposit)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7::text::numeric, $8::text::numeric)
		ON CONFLICT (id) DO UPDATE SET
			admin = EXCLUDED.admin,
			beneficiary = EXCLUDED.beneficiary,
			legacy_token = EXCLUDED.legacy_token,
			legacy_epoch = EXCLUDED.legacy_epoch,
			tax_numerator = EXCLUDED.tax_numerator,
			tax_denominator = EXCLUDED.tax_denominator,
			mint_price = EXCLUDED.mint_price,
			min_deposit = EXCLUDED.min_deposit
	`
	_, err := t.tx.Exec(ctx, query,
		s.Admin, s.Beneficiary, s.LegacyToken, s.LegacyEpoch, s.TaxNumerator, s.TaxDenominator,
		s.MintPrice.String(), s.MinDeposit.String())
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func (t *pgTx) AddPayout(ctx context.Context, p *models.Payout) error {
	query := `
		INSERT INTO payouts (id, recipient, amount, reason, created_at)
		VALUES ($1::text::uuid, $2, $3::text::numeric, $4, $5)
	`
	if _, err := t.tx.Exec(ctx, query, p.ID, p.To, p.Amount.String(), p.Reason, p.CreatedAt); err != nil {
		return fmt.Errorf("failed to record payout %s: %w", p.ID, err)
	}
	return nil
}

func (t *pgTx) Payouts(ctx context.Context) ([]models.Payout, error) {
	query := `
		SELECT id::text, recipient, amount::text, reason, created_at
		FROM payouts
		ORDER BY seq
	`
	rows, err := t.tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query payouts: %w", err)
	}
	defer rows.Close()

	payouts := []models.Payout{}
	for rows.Next() {
		var p models.Payout
		var amount models.Wei
		if err := rows.Scan(&p.ID, &p.To, &amount, &p.Reason, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payout row: %w", err)
		}
		p.Amount = amount.Int()
		p.CreatedAt = p.CreatedAt.UTC()
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payout rows: %w", err)
	}
	return payouts, nil
}
