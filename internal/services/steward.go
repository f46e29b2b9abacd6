package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/daysteward/internal/calendar"
	"github.com/stwalsh4118/daysteward/internal/legacy"
	"github.com/stwalsh4118/daysteward/internal/logger"
	"github.com/stwalsh4118/daysteward/internal/metrics"
	"github.com/stwalsh4118/daysteward/internal/models"
	"github.com/stwalsh4118/daysteward/internal/money"
	"github.com/stwalsh4118/daysteward/internal/registry"
	"github.com/stwalsh4118/daysteward/internal/repository"
)

// StewardService is the steward API the HTTP layer depends on.
type StewardService interface {
	BuyOrMint(ctx context.Context, req BuyRequest) (*models.ParcelView, error)
	ClaimLegacy(ctx context.Context, req LegacyClaimRequest) (*models.ParcelView, error)
	ChangeDayNamePrice(ctx context.Context, caller string, id, month, day int, name string, price *big.Int) (*models.ParcelView, error)
	DepositWeiPatron(ctx context.Context, owner string, amount *big.Int) (*big.Int, error)
	CollectPatronage(ctx context.Context, id int) (*big.Int, *models.ParcelView, error)
	DepositAbleToWithdraw(ctx context.Context, owner string) (*big.Int, error)
	WithdrawDeposit(ctx context.Context, caller string, amount *big.Int) (*big.Int, error)
	WithdrawBenefactorFundsTo(ctx context.Context, caller, to string) (*big.Int, error)
	GetDeposit(ctx context.Context, owner string) (*big.Int, error)
	Foreclosed(ctx context.Context, id int) (bool, error)
	Parcel(ctx context.Context, id int) (*models.ParcelView, error)
	Settings(ctx context.Context) (*models.Settings, error)
	SetBenefactor(ctx context.Context, caller, beneficiary string) error
	SetLegacyToken(ctx context.Context, caller, source string) error
	WithdrawProceedsTo(ctx context.Context, caller, to string) (*big.Int, error)
}

var _ StewardService = (*Steward)(nil)

// Steward is the entry point for every parcel operation. Each state-changing
// call runs in a single store transaction that first collects the tax owed
// on the parcels it touches; on error nothing it did is kept.
type Steward struct {
	store         repository.Store
	ledger        *PatronageLedger
	escrow        *EscrowAccounts
	clock         Clock
	disburser     Disburser
	metrics       *metrics.Metrics
	resolveLegacy func(source string) (legacy.Token, error)
	log           *logger.Logger
}

// StewardOption configures a Steward.
type StewardOption func(*Steward)

// WithClock replaces the system clock.
func WithClock(c Clock) StewardOption {
	return func(s *Steward) { s.clock = c }
}

// WithDisburser replaces the logging disburser.
func WithDisburser(d Disburser) StewardOption {
	return func(s *Steward) { s.disburser = d }
}

// WithMetrics records steward activity in m.
func WithMetrics(m *metrics.Metrics) StewardOption {
	return func(s *Steward) { s.metrics = m }
}

// WithLegacyResolver replaces legacy.Resolve.
func WithLegacyResolver(fn func(source string) (legacy.Token, error)) StewardOption {
	return func(s *Steward) { s.resolveLegacy = fn }
}

// NewSteward creates a steward over store.
func NewSteward(store repository.Store, log *logger.Logger, opts ...StewardOption) *Steward {
	ledger := NewPatronageLedger()
	s := &Steward{
		store:         store,
		ledger:        ledger,
		escrow:        NewEscrowAccounts(ledger),
		clock:         SystemClock{},
		disburser:     NewLogDisburser(log),
		resolveLegacy: legacy.Resolve,
		log:           log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuyRequest is a buy-or-mint order. Recipient receives the parcel and the
// deposit; it defaults to Caller.
type BuyRequest struct {
	Price     *big.Int
	Deposit   *big.Int
	Payment   *big.Int
	Caller    string
	Recipient string
	Name      string
	Month     int
	Day       int
}

// LegacyClaimRequest mints a day for the holder of the same day in the
// legacy registry without charging the mint price.
type LegacyClaimRequest struct {
	Price   *big.Int
	Deposit *big.Int
	Payment *big.Int
	Caller  string
	Name    string
	Month   int
	Day     int
}

// op is the state of one steward transaction.
type op struct {
	ctx        context.Context
	tx         repository.Tx
	reg        registry.Registry
	settings   *models.Settings
	now        time.Time
	collected  *big.Int
	foreclosed []int
	payouts    []models.Payout
	sale       string
}

// pay records a payout in the outbox. It is released after commit.
func (o *op) pay(to string, amount *big.Int, reason string) error {
	if amount.Sign() == 0 {
		return nil
	}
	p := models.Payout{
		ID:        uuid.NewString(),
		To:        to,
		Amount:    money.Copy(amount),
		Reason:    reason,
		CreatedAt: o.now,
	}
	if err := o.tx.AddPayout(o.ctx, &p); err != nil {
		return err
	}
	o.payouts = append(o.payouts, p)
	return nil
}

func (s *Steward) begin(ctx context.Context, tx repository.Tx) (*op, error) {
	settings, err := tx.Settings(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotConfigured
		}
		return nil, err
	}
	return &op{
		ctx:       ctx,
		tx:        tx,
		reg:       registry.New(tx),
		settings:  settings,
		now:       s.clock.Now(),
		collected: money.Zero(),
	}, nil
}

// update runs fn in a write transaction and settles its effects on commit.
func (s *Steward) update(ctx context.Context, fn func(o *op) error) error {
	var done *op
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		o, err := s.begin(ctx, tx)
		if err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
		done = o
		return nil
	})
	if err != nil {
		return err
	}
	s.settle(ctx, done)
	return nil
}

func (s *Steward) view(ctx context.Context, fn func(o *op) error) error {
	return s.store.View(ctx, func(tx repository.Tx) error {
		o, err := s.begin(ctx, tx)
		if err != nil {
			return err
		}
		return fn(o)
	})
}

// settle publishes the effects of a committed transaction.
func (s *Steward) settle(ctx context.Context, o *op) {
	s.metrics.TaxCollected(o.collected)
	for _, id := range o.foreclosed {
		s.metrics.Foreclosure()
		s.log.Info("Parcel foreclosed", map[string]interface{}{
			"parcel_id": id,
		})
	}
	if o.sale != "" {
		s.metrics.Sale(o.sale)
	}
	for _, p := range o.payouts {
		if err := s.disburser.Disburse(ctx, p); err != nil {
			s.log.Error("Failed to release payout", err, map[string]interface{}{
				"payout_id": p.ID,
				"to":        p.To,
				"reason":    p.Reason,
			})
			continue
		}
		s.metrics.Payout(p.Reason)
	}
}

// collectFirst settles the tax owed on id. Every operation that reads or
// changes a parcel's price, owner or its owner's deposit calls it first.
func (s *Steward) collectFirst(o *op, id int) (*models.Parcel, error) {
	month, day, err := calendar.SplitID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	c, err := s.ledger.Collect(o.ctx, o.tx, o.settings, id, month, day, o.now)
	if err != nil {
		return nil, err
	}
	o.collected = money.Add(o.collected, c.Collected)
	if c.Foreclosed {
		o.foreclosed = append(o.foreclosed, id)
	}
	return c.Parcel, nil
}

// BuyOrMint mints an unminted day, reclaims a foreclosed one or force-buys
// an owned one from its current owner at the declared price.
//
// An unminted day costs the mint price, a foreclosed one nothing and an owned
// one its current price; in every case the payment must also cover the
// deposit. The deposit is credited to the recipient; the current price of an
// owned day is paid out to its previous owner, whose leftover deposit stays
// theirs. Anything else the payment carries, the mint price included, is
// credited to proceeds.
func (s *Steward) BuyOrMint(ctx context.Context, req BuyRequest) (*models.ParcelView, error) {
	if !calendar.IsValidDate(req.Month, req.Day) {
		return nil, fmt.Errorf("%w: %d/%d", ErrInvalidDate, req.Month, req.Day)
	}
	if err := checkAmounts(req.Price, req.Deposit, req.Payment); err != nil {
		return nil, err
	}
	caller := normalizeAddress(req.Caller)
	recipient := normalizeAddress(req.Recipient)
	if recipient == "" {
		recipient = caller
	}
	if err := checkAccount(caller); err != nil {
		return nil, err
	}
	if err := checkAccount(recipient); err != nil {
		return nil, err
	}
	id := calendar.DayID(req.Month, req.Day)

	var view *models.ParcelView
	err := s.update(ctx, func(o *op) error {
		if err := checkDeposit(o.settings, req.Deposit); err != nil {
			return err
		}
		p, err := s.collectFirst(o, id)
		if err != nil {
			return err
		}

		var base *big.Int
		var seller string
		switch {
		case !p.Minted:
			base, o.sale = o.settings.MintPrice, metrics.SaleMint
		case p.Foreclosed:
			base, o.sale = money.Zero(), metrics.SaleReclaim
		default:
			base, o.sale = p.Price, metrics.SaleForced
			if seller, err = o.reg.OwnerOf(ctx, id); err != nil {
				return err
			}
		}

		required := money.Add(base, req.Deposit)
		if req.Payment.Cmp(required) < 0 {
			return fmt.Errorf("%w: paid %s, %s required",
				ErrInsufficientPayment, money.FormatEther(req.Payment), money.FormatEther(required))
		}

		proceeds := money.Sub(req.Payment, required)
		switch o.sale {
		case metrics.SaleMint:
			err = o.reg.Mint(ctx, recipient, id)
			proceeds = money.Add(proceeds, base)
		case metrics.SaleReclaim:
			err = o.reg.Transfer(ctx, registry.StewardHolder, recipient, id)
		case metrics.SaleForced:
			if err = o.reg.Transfer(ctx, seller, recipient, id); err == nil {
				err = o.pay(seller, base, models.PayoutSale)
			}
		}
		if err != nil {
			return err
		}

		view, err = s.acquire(o, p, recipient, req.Price, req.Deposit, req.Name, proceeds)
		if err != nil {
			return err
		}

		s.log.Info("Parcel acquired", map[string]interface{}{
			"parcel_id": id,
			"kind":      o.sale,
			"caller":    caller,
			"owner":     recipient,
			"seller":    seller,
			"price":     money.FormatEther(req.Price),
			"deposit":   money.FormatEther(req.Deposit),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ClaimLegacy mints an unminted day for the caller if the caller holds the
// same day in the configured legacy registry. The mint price is waived; the
// payment must cover the deposit.
func (s *Steward) ClaimLegacy(ctx context.Context, req LegacyClaimRequest) (*models.ParcelView, error) {
	if !calendar.IsValidDate(req.Month, req.Day) {
		return nil, fmt.Errorf("%w: %d/%d", ErrInvalidDate, req.Month, req.Day)
	}
	if err := checkAmounts(req.Price, req.Deposit, req.Payment); err != nil {
		return nil, err
	}
	caller := normalizeAddress(req.Caller)
	if err := checkAccount(caller); err != nil {
		return nil, err
	}
	id := calendar.DayID(req.Month, req.Day)

	var source string
	var epoch int64
	err := s.view(ctx, func(o *op) error {
		source, epoch = o.settings.LegacyToken, o.settings.LegacyEpoch
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The legacy registry is consulted outside the transaction so a slow
	// remote never holds the store lock.
	if err := s.checkLegacyHolder(ctx, source, caller, id); err != nil {
		return nil, err
	}

	var view *models.ParcelView
	err = s.update(ctx, func(o *op) error {
		if o.settings.LegacyToken != source || o.settings.LegacyEpoch != epoch {
			return fmt.Errorf("%w: legacy registry changed during the claim", ErrLegacyUnavailable)
		}
		if err := checkDeposit(o.settings, req.Deposit); err != nil {
			return err
		}
		p, err := s.collectFirst(o, id)
		if err != nil {
			return err
		}
		if p.Minted {
			return fmt.Errorf("%w: %d", ErrAlreadyMinted, id)
		}
		if req.Payment.Cmp(req.Deposit) < 0 {
			return fmt.Errorf("%w: paid %s, %s required",
				ErrInsufficientPayment, money.FormatEther(req.Payment), money.FormatEther(req.Deposit))
		}
		if err := o.reg.Mint(ctx, caller, id); err != nil {
			return err
		}
		o.sale = metrics.SaleLegacy

		view, err = s.acquire(o, p, caller, req.Price, req.Deposit, req.Name, money.Sub(req.Payment, req.Deposit))
		if err != nil {
			return err
		}

		s.log.Info("Legacy day claimed", map[string]interface{}{
			"parcel_id": id,
			"owner":     caller,
			"price":     money.FormatEther(req.Price),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Steward) checkLegacyHolder(ctx context.Context, source, caller string, id int) error {
	if source == "" {
		return fmt.Errorf("%w: no legacy registry configured", ErrLegacyUnavailable)
	}
	token, err := s.resolveLegacy(source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLegacyUnavailable, err)
	}
	holder, err := token.OwnerOf(ctx, id)
	if err != nil {
		if errors.Is(err, legacy.ErrNoOwner) {
			return fmt.Errorf("%w: day %d has no legacy owner", ErrUnauthorized, id)
		}
		return fmt.Errorf("%w: %v", ErrLegacyUnavailable, err)
	}
	if normalizeAddress(holder) != caller {
		return fmt.Errorf("%w: caller does not hold legacy day %d", ErrUnauthorized, id)
	}
	return nil
}

// acquire finishes a sale once the registry holds the parcel for owner.
func (s *Steward) acquire(o *op, p *models.Parcel, owner string, price, deposit *big.Int, name string, proceeds *big.Int) (*models.ParcelView, error) {
	if err := o.reg.SetDayName(o.ctx, p.Month, p.Day, name); err != nil {
		return nil, err
	}

	p.Price = money.Copy(price)
	p.LastCollected = o.now
	p.Minted = true
	p.Foreclosed = false
	if err := o.tx.PutParcel(o.ctx, p); err != nil {
		return nil, err
	}

	if deposit.Sign() > 0 {
		if _, err := s.escrow.Deposit(o.ctx, o.tx, owner, deposit); err != nil {
			return nil, err
		}
	}
	if err := s.escrow.CreditProceeds(o.ctx, o.tx, proceeds); err != nil {
		return nil, err
	}
	return s.viewOf(o, p)
}

// ChangeDayNamePrice lets the owner of id rename it and declare a new price.
// Tax up to now is collected at the old price first.
func (s *Steward) ChangeDayNamePrice(ctx context.Context, caller string, id, month, day int, name string, price *big.Int) (*models.ParcelView, error) {
	if !calendar.IsValidDate(month, day) || calendar.DayID(month, day) != id {
		return nil, fmt.Errorf("%w: id %d does not match %d/%d", ErrInvalidDate, id, month, day)
	}
	if price == nil || price.Sign() < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidAmount)
	}
	caller = normalizeAddress(caller)

	var view *models.ParcelView
	err := s.update(ctx, func(o *op) error {
		p, err := s.collectFirst(o, id)
		if err != nil {
			return err
		}
		if !p.Minted || p.Foreclosed {
			return fmt.Errorf("%w: %d is not owned", ErrUnauthorized, id)
		}
		owner, err := o.reg.OwnerOf(ctx, id)
		if err != nil {
			return err
		}
		if owner != caller {
			return fmt.Errorf("%w: only the owner can change %d", ErrUnauthorized, id)
		}

		if err := o.reg.SetDayName(ctx, month, day, name); err != nil {
			return err
		}
		p.Price = money.Copy(price)
		if err := o.tx.PutParcel(ctx, p); err != nil {
			return err
		}
		view, err = s.viewOf(o, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Parcel updated", map[string]interface{}{
		"parcel_id": id,
		"price":     money.FormatEther(price),
	})
	return view, nil
}

// DepositWeiPatron adds amount to owner's deposit and returns the new balance.
func (s *Steward) DepositWeiPatron(ctx context.Context, owner string, amount *big.Int) (*big.Int, error) {
	owner = normalizeAddress(owner)
	if err := checkAccount(owner); err != nil {
		return nil, err
	}
	var balance *big.Int
	err := s.update(ctx, func(o *op) error {
		var err error
		balance, err = s.escrow.Deposit(ctx, o.tx, owner, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// CollectPatronage collects the tax owed on id and returns the amount
// collected along with the parcel's new state.
func (s *Steward) CollectPatronage(ctx context.Context, id int) (*big.Int, *models.ParcelView, error) {
	var view *models.ParcelView
	var collected *big.Int
	err := s.update(ctx, func(o *op) error {
		p, err := s.collectFirst(o, id)
		if err != nil {
			return err
		}
		collected = money.Copy(o.collected)
		view, err = s.viewOf(o, p)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return collected, view, nil
}

// DepositAbleToWithdraw is what owner could withdraw right now.
func (s *Steward) DepositAbleToWithdraw(ctx context.Context, owner string) (*big.Int, error) {
	owner = normalizeAddress(owner)
	var amount *big.Int
	err := s.view(ctx, func(o *op) error {
		var err error
		amount, err = s.escrow.Withdrawable(ctx, o.tx, o.settings, owner, o.now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// WithdrawDeposit collects the tax owed on every parcel the caller holds,
// then pays amount out of their deposit. It returns the remaining deposit.
func (s *Steward) WithdrawDeposit(ctx context.Context, caller string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: withdrawal must be positive", ErrInvalidAmount)
	}
	caller = normalizeAddress(caller)

	var remaining *big.Int
	err := s.update(ctx, func(o *op) error {
		ids, err := o.reg.TokensOf(ctx, caller)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := s.collectFirst(o, id); err != nil {
				return err
			}
		}
		if remaining, err = s.escrow.Withdraw(ctx, o.tx, caller, amount); err != nil {
			return err
		}
		return o.pay(caller, amount, models.PayoutWithdrawal)
	})
	if err != nil {
		return nil, err
	}
	return remaining, nil
}

// WithdrawBenefactorFundsTo pays the whole beneficiary pool to `to`. Only the
// configured beneficiary may call it.
func (s *Steward) WithdrawBenefactorFundsTo(ctx context.Context, caller, to string) (*big.Int, error) {
	caller, to = normalizeAddress(caller), normalizeAddress(to)
	var amount *big.Int
	err := s.update(ctx, func(o *op) error {
		var err error
		if amount, err = s.escrow.WithdrawBeneficiaryFunds(ctx, o.tx, o.settings, caller); err != nil {
			return err
		}
		return o.pay(to, amount, models.PayoutBeneficiary)
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// GetDeposit returns owner's deposit as stored, without projecting tax.
func (s *Steward) GetDeposit(ctx context.Context, owner string) (*big.Int, error) {
	owner = normalizeAddress(owner)
	var deposit *big.Int
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		deposit, err = tx.Deposit(ctx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return deposit, nil
}

// Foreclosed reports whether id is foreclosed as of its last collection.
func (s *Steward) Foreclosed(ctx context.Context, id int) (bool, error) {
	if _, _, err := calendar.SplitID(id); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	var foreclosed bool
	err := s.store.View(ctx, func(tx repository.Tx) error {
		p, err := tx.Parcel(ctx, id)
		if err != nil {
			return err
		}
		foreclosed = s.ledger.Foreclosed(p)
		return nil
	})
	return foreclosed, err
}

// Parcel returns the current state of id with the tax accrued since its last
// collection. Unminted days are returned as such.
func (s *Steward) Parcel(ctx context.Context, id int) (*models.ParcelView, error) {
	month, day, err := calendar.SplitID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	var view *models.ParcelView
	err = s.view(ctx, func(o *op) error {
		p, err := s.ledger.Load(ctx, o.tx, id, month, day)
		if err != nil {
			return err
		}
		view, err = s.viewOf(o, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Steward) viewOf(o *op, p *models.Parcel) (*models.ParcelView, error) {
	v := &models.ParcelView{
		Parcel:       *p.Clone(),
		Owner:        registry.StewardHolder,
		ProjectedTax: s.ledger.Owed(p, o.settings, o.now),
		Owned:        p.Minted && !p.Foreclosed,
	}
	tok, err := o.tx.Token(o.ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if tok != nil {
		v.Owner = tok.Owner
		v.Name = tok.Name
	}
	return v, nil
}

// Settings returns the persisted steward settings.
func (s *Steward) Settings(ctx context.Context) (*models.Settings, error) {
	var settings *models.Settings
	err := s.view(ctx, func(o *op) error {
		settings = o.settings.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// Bootstrap stores defaults as the steward settings unless settings were
// persisted by an earlier run, and returns the settings in effect.
func (s *Steward) Bootstrap(ctx context.Context, defaults *models.Settings) (*models.Settings, error) {
	var settings *models.Settings
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		existing, err := tx.Settings(ctx)
		if err == nil {
			settings = existing
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		settings = defaults.Clone()
		settings.Admin = normalizeAddress(settings.Admin)
		settings.Beneficiary = normalizeAddress(settings.Beneficiary)
		return tx.PutSettings(ctx, settings)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap steward settings: %w", err)
	}
	return settings, nil
}

// SetBenefactor changes the beneficiary. Only the admin may call it.
func (s *Steward) SetBenefactor(ctx context.Context, caller, beneficiary string) error {
	caller, beneficiary = normalizeAddress(caller), normalizeAddress(beneficiary)
	if err := checkAccount(beneficiary); err != nil {
		return err
	}
	return s.admin(ctx, caller, func(o *op) error {
		o.settings.Beneficiary = beneficiary
		return nil
	})
}

// SetLegacyToken points legacy claims at source. A source can be set once
// per migration epoch: an empty source disables legacy claims and closes
// the epoch, after which a new source may be set. Only the admin may call it.
func (s *Steward) SetLegacyToken(ctx context.Context, caller, source string) error {
	source = strings.TrimSpace(source)
	if source != "" {
		if _, err := s.resolveLegacy(source); err != nil {
			return fmt.Errorf("%w: %v", ErrLegacyUnavailable, err)
		}
	}
	return s.admin(ctx, normalizeAddress(caller), func(o *op) error {
		current := o.settings.LegacyToken
		switch {
		case source == "":
			if current != "" {
				o.settings.LegacyEpoch++
			}
		case current != "":
			return fmt.Errorf("%w: epoch %d uses %s", ErrLegacyTokenSet, o.settings.LegacyEpoch, current)
		}
		o.settings.LegacyToken = source
		return nil
	})
}

// WithdrawProceedsTo pays all mint proceeds and overpayments to `to`. Only
// the admin may call it.
func (s *Steward) WithdrawProceedsTo(ctx context.Context, caller, to string) (*big.Int, error) {
	caller, to = normalizeAddress(caller), normalizeAddress(to)
	var amount *big.Int
	err := s.update(ctx, func(o *op) error {
		var err error
		if amount, err = s.escrow.WithdrawProceeds(ctx, o.tx, o.settings, caller); err != nil {
			return err
		}
		return o.pay(to, amount, models.PayoutProceeds)
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

func (s *Steward) admin(ctx context.Context, caller string, fn func(o *op) error) error {
	err := s.update(ctx, func(o *op) error {
		if caller != o.settings.Admin {
			return fmt.Errorf("%w: admin only", ErrUnauthorized)
		}
		if err := fn(o); err != nil {
			return err
		}
		return o.tx.PutSettings(ctx, o.settings)
	})
	if err != nil {
		return err
	}
	s.log.Info("Steward settings changed", map[string]interface{}{
		"admin": caller,
	})
	return nil
}

// Sweep collects the tax owed on every held parcel, one transaction per
// parcel, and returns how many parcels are still owned afterwards. A parcel
// that fails to collect does not stop the sweep; its error is joined into
// the returned one.
func (s *Steward) Sweep(ctx context.Context) (int, error) {
	start := time.Now()

	var ids []int
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		ids, err = tx.HeldTokens(ctx, registry.StewardHolder)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list held parcels: %w", err)
	}

	owned := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return owned, errors.Join(append(errs, err)...)
		}
		_, view, err := s.CollectPatronage(ctx, id)
		if err != nil {
			s.log.Error("Failed to collect parcel", err, map[string]interface{}{
				"parcel_id": id,
			})
			errs = append(errs, fmt.Errorf("failed to collect parcel %d: %w", id, err))
			continue
		}
		if view.Owned {
			owned++
		}
	}

	took := time.Since(start)
	s.metrics.Sweep(owned, took)
	s.log.Debug("Sweep finished", map[string]interface{}{
		"held":        len(ids),
		"owned":       owned,
		"failed":      len(errs),
		"duration_ms": took.Milliseconds(),
	})
	return owned, errors.Join(errs...)
}

func checkAmounts(price, deposit, payment *big.Int) error {
	if price == nil || deposit == nil || payment == nil {
		return fmt.Errorf("%w: price, deposit and payment are required", ErrInvalidAmount)
	}
	if price.Sign() < 0 || deposit.Sign() < 0 || payment.Sign() < 0 {
		return fmt.Errorf("%w: amounts must not be negative", ErrInvalidAmount)
	}
	return nil
}

func checkDeposit(s *models.Settings, deposit *big.Int) error {
	if deposit.Cmp(s.MinDeposit) < 0 {
		return fmt.Errorf("%w: %s is below the minimum of %s",
			ErrInsufficientDeposit, money.FormatEther(deposit), money.FormatEther(s.MinDeposit))
	}
	return nil
}

// checkAccount rejects addresses that cannot hold a parcel or a deposit. The
// steward's holder address is reserved for foreclosed parcels.
func checkAccount(addr string) error {
	switch addr {
	case "":
		return fmt.Errorf("%w: address is required", ErrInvalidAddress)
	case registry.StewardHolder:
		return fmt.Errorf("%w: %s is reserved for the steward", ErrInvalidAddress, addr)
	}
	return nil
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
