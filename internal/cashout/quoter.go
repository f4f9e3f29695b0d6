// Package cashout prices and executes early exits from open market positions.
// It is deliberately independent of the order executor: a quote recomputes
// the pool snapshot fresh on every call so the number shown to the user and
// the number paid on execution come from the same arithmetic, never a cache.
package cashout

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/riozmarkets/settlement/internal/domain"
	"github.com/riozmarkets/settlement/internal/executor"
	"github.com/riozmarkets/settlement/internal/pool"
)

// Quote is the early-exit value of a position at the current multiplier.
type Quote struct {
	Gross       float64 `json:"gross"`
	Fee         float64 `json:"fee"`
	Net         float64 `json:"net"`
	MultipleNow float64 `json:"multiple_now"`
}

// Quoter computes and executes cashouts.
type Quoter struct {
	accounts  domain.AccountStore
	markets   domain.MarketStore
	positions domain.PositionStore
	ledger    domain.LedgerStore
	bus       domain.SignalBus
	feeRate   float64
	logger    *slog.Logger
}

// NewQuoter creates a Quoter. feeRate is the cashout fee as a fraction of the
// gross exit value.
func NewQuoter(
	accounts domain.AccountStore,
	markets domain.MarketStore,
	positions domain.PositionStore,
	ledger domain.LedgerStore,
	bus domain.SignalBus,
	feeRate float64,
	logger *slog.Logger,
) *Quoter {
	return &Quoter{
		accounts:  accounts,
		markets:   markets,
		positions: positions,
		ledger:    ledger,
		bus:       bus,
		feeRate:   feeRate,
		logger:    logger.With(slog.String("component", "cashout")),
	}
}

// QuoteCashout prices an early exit for an active position at the current
// pool multiplier.
func (q *Quoter) QuoteCashout(ctx context.Context, positionID string) (Quote, error) {
	p, err := q.positions.GetByID(ctx, positionID)
	if err != nil {
		return Quote{}, fmt.Errorf("cashout: load position: %w", err)
	}
	if p.Status != domain.PositionStatusActive {
		return Quote{}, domain.ErrNotActive
	}
	return q.quote(ctx, p)
}

func (q *Quoter) quote(ctx context.Context, p domain.Position) (Quote, error) {
	m, err := q.markets.GetByID(ctx, p.MarketID)
	if err != nil {
		return Quote{}, fmt.Errorf("cashout: load market: %w", err)
	}
	active, err := q.positions.ListActiveByMarket(ctx, p.MarketID)
	if err != nil {
		return Quote{}, fmt.Errorf("cashout: list active positions: %w", err)
	}

	snap := pool.Compute(p.MarketID, m.Options, active, executor.PoolFeePercent)
	multiple := snap.Multiplier(p.OptionChosen)

	gross := p.Stake * multiple
	fee := gross * q.feeRate
	net := round2(gross - fee)
	if net < 0 {
		net = 0
	}
	return Quote{
		Gross:       round2(gross),
		Fee:         round2(fee),
		Net:         net,
		MultipleNow: multiple,
	}, nil
}

// PerformCashout executes an early exit. The quote is recomputed here, never
// taken from the caller: a client-supplied number is only ever a display
// value. The active -> cashed_out transition is the at-most-once barrier; the
// credit is unwound if it cannot be recorded.
func (q *Quoter) PerformCashout(ctx context.Context, positionID, userID string) (Quote, error) {
	p, err := q.positions.GetByID(ctx, positionID)
	if err != nil {
		return Quote{}, fmt.Errorf("cashout: load position: %w", err)
	}
	if p.UserID != userID {
		return Quote{}, domain.ErrNotOwner
	}
	if p.Status != domain.PositionStatusActive {
		return Quote{}, domain.ErrNotActive
	}

	quote, err := q.quote(ctx, p)
	if err != nil {
		return Quote{}, err
	}

	now := time.Now().UTC()

	// Claim the position first. A concurrent cashout of the same position
	// loses this race and is rejected, which is what guarantees exactly one
	// credit transaction per position.
	if err := q.positions.Transition(ctx, p.ID, domain.PositionStatusActive, domain.PositionStatusCashedOut, now); err != nil {
		return Quote{}, fmt.Errorf("cashout: claim position: %w", err)
	}
	revert := func() {
		if err := q.positions.Transition(ctx, p.ID, domain.PositionStatusCashedOut, domain.PositionStatusActive, now); err != nil {
			q.logger.ErrorContext(ctx, "cashout revert failed, position stuck cashed_out without credit",
				slog.String("position_id", p.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	acct, err := q.accounts.Adjust(ctx, userID, domain.CurrencyCoin, quote.Net)
	if err != nil {
		revert()
		return Quote{}, fmt.Errorf("cashout: credit net: %w", err)
	}

	cashoutTx := domain.LedgerTransaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Direction:   domain.TxCredit,
		Amount:      quote.Net,
		Currency:    domain.CurrencyCoin,
		Description: fmt.Sprintf("cashout %s at %.4fx", p.ID, quote.MultipleNow),
		RefID:       &p.MarketID,
		CreatedAt:   now,
	}
	if err := q.ledger.Append(ctx, cashoutTx); err != nil {
		if _, aerr := q.accounts.Adjust(ctx, userID, domain.CurrencyCoin, -quote.Net); aerr != nil {
			q.logger.ErrorContext(ctx, "cashout rollback debit failed",
				slog.String("position_id", p.ID), slog.String("error", aerr.Error()))
		}
		revert()
		return Quote{}, fmt.Errorf("cashout: append tx: %w", err)
	}

	ev := domain.NewEvent(domain.EventBalanceChanged, userID, map[string]any{
		"coin_balance": acct.AvailableBalance,
		"fiat_balance": acct.FiatBalance,
	})
	if err := q.bus.Publish(ctx, domain.ChannelBalances, ev.Marshal()); err != nil {
		q.logger.WarnContext(ctx, "event publish failed", slog.String("error", err.Error()))
	}

	return quote, nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
