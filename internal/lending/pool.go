/*
Package lending is the single shared pool of quote liquidity that leveraged positions borrow from.

Every unit of liquidity is either available or borrowed. Borrow and Repay move value between
the two and nothing else, so TotalLiquidity + Borrowed never changes. Calls are all-or-nothing.
*/
package lending

import (
	"fmt"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/forgelabs/crucible/internal/fixedpoint"
	"github.com/forgelabs/crucible/internal/logger"
	"github.com/forgelabs/crucible/internal/types"
)

const daysPerYear = 365

// InsufficientLiquidityError carries how much could have been borrowed.
type InsufficientLiquidityError struct {
	Requested types.QuoteAmount
	Available types.QuoteAmount
}

func (e *InsufficientLiquidityError) Error() string {
	return fmt.Sprintf("%s: requested %s, available %s",
		types.ErrInsufficientLiquidity, fixedpoint.FormatAmount(e.Requested.Int), fixedpoint.FormatAmount(e.Available.Int))
}

func (e *InsufficientLiquidityError) Unwrap() error { return types.ErrInsufficientLiquidity }

// Cause lets errorsmod.ABCIInfo resolve the registered code.
func (e *InsufficientLiquidityError) Cause() error { return types.ErrInsufficientLiquidity }

// InterestProjection splits projected lender interest into the protocol fee and what the lender keeps.
type InterestProjection struct {
	Principal           types.QuoteAmount `json:"principal"`
	Days                int               `json:"days"`
	RateAnnual          math.LegacyDec    `json:"rate_annual"`
	EffectiveRateAnnual math.LegacyDec    `json:"effective_rate_annual"`
	Gross               types.QuoteAmount `json:"gross"`
	Fee                 types.QuoteAmount `json:"fee"`
	Net                 types.QuoteAmount `json:"net"`
}

type Config struct {
	QuoteSymbol        string         `json:"quote_symbol"`
	InitialLiquidity   math.Int       `json:"initial_liquidity"`
	InterestRateAnnual math.LegacyDec `json:"interest_rate_annual"`
}

// State is a consistent snapshot of the pool.
type State struct {
	QuoteSymbol        string            `json:"quote_symbol"`
	TotalLiquidity     types.QuoteAmount `json:"total_liquidity"`
	Borrowed           types.QuoteAmount `json:"borrowed"`
	InitialLiquidity   types.QuoteAmount `json:"initial_liquidity"`
	InterestRateAnnual math.LegacyDec    `json:"interest_rate_annual"`
	Utilization        decimal.Decimal   `json:"utilization"`
}

type Pool struct {
	mu sync.Mutex

	logger      zerolog.Logger
	quoteSymbol string
	initial     math.Int
	liquidity   math.Int
	borrowed    math.Int
	rate        math.LegacyDec
}

func NewPool(cfg Config) (*Pool, error) {
	if cfg.QuoteSymbol == "" {
		return nil, errorsmod.Wrap(types.ErrInvalidConfig, "lending pool quote symbol is empty")
	}
	if cfg.InitialLiquidity.IsNil() || cfg.InitialLiquidity.IsNegative() {
		return nil, errorsmod.Wrap(types.ErrInvalidConfig, "lending pool liquidity must be >= 0")
	}
	if cfg.InterestRateAnnual.IsNil() || cfg.InterestRateAnnual.IsNegative() {
		return nil, errorsmod.Wrap(types.ErrInvalidConfig, "lending pool interest rate must be >= 0")
	}
	return &Pool{
		logger:      logger.GetForComponent("lending_pool"),
		quoteSymbol: cfg.QuoteSymbol,
		initial:     cfg.InitialLiquidity,
		liquidity:   cfg.InitialLiquidity,
		borrowed:    math.ZeroInt(),
		rate:        cfg.InterestRateAnnual,
	}, nil
}

func (p *Pool) QuoteSymbol() string { return p.quoteSymbol }

// Borrow moves amount from available liquidity to borrowed.
func (p *Pool) Borrow(amount types.QuoteAmount) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if amount.IsNil() || !amount.IsPositive() {
		return errorsmod.Wrapf(types.ErrInvalidAmount, "borrow %s", amount)
	}
	if amount.GT(p.liquidity) {
		p.logger.Warn().
			Str("requested", fixedpoint.FormatAmount(amount.Int)).
			Str("available", fixedpoint.FormatAmount(p.liquidity)).
			Msg("Borrow rejected: insufficient liquidity")
		return &InsufficientLiquidityError{Requested: amount, Available: types.NewQuoteAmount(p.liquidity)}
	}
	borrowed, err := fixedpoint.Add(p.borrowed, amount.Int)
	if err != nil {
		return err
	}

	p.liquidity = p.liquidity.Sub(amount.Int)
	p.borrowed = borrowed
	p.logger.Debug().
		Str("amount", fixedpoint.FormatAmount(amount.Int)).
		Str("available", fixedpoint.FormatAmount(p.liquidity)).
		Msg("Borrowed from lending pool")
	return nil
}

// Repay moves amount from borrowed back to available liquidity.
func (p *Pool) Repay(amount types.QuoteAmount) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if amount.IsNil() || !amount.IsPositive() {
		return errorsmod.Wrapf(types.ErrInvalidAmount, "repay %s", amount)
	}
	if amount.GT(p.borrowed) {
		return errorsmod.Wrapf(types.ErrOverRepayment, "repay %s, borrowed %s",
			fixedpoint.FormatAmount(amount.Int), fixedpoint.FormatAmount(p.borrowed))
	}
	liquidity, err := fixedpoint.Add(p.liquidity, amount.Int)
	if err != nil {
		return err
	}

	p.borrowed = p.borrowed.Sub(amount.Int)
	p.liquidity = liquidity
	p.logger.Debug().
		Str("amount", fixedpoint.FormatAmount(amount.Int)).
		Str("available", fixedpoint.FormatAmount(p.liquidity)).
		Msg("Repaid to lending pool")
	return nil
}

func (p *Pool) AvailableLiquidity() types.QuoteAmount {
	p.mu.Lock()
	defer p.mu.Unlock()
	return types.NewQuoteAmount(p.liquidity)
}

func (p *Pool) BorrowRateAnnual() math.LegacyDec {
	return p.rate
}

func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	utilization := decimal.Zero
	if total := p.liquidity.Add(p.borrowed); total.IsPositive() {
		utilization = decimal.NewFromBigInt(p.borrowed.BigInt(), 0).
			Div(decimal.NewFromBigInt(total.BigInt(), 0))
	}
	return State{
		QuoteSymbol:        p.quoteSymbol,
		TotalLiquidity:     types.NewQuoteAmount(p.liquidity),
		Borrowed:           types.NewQuoteAmount(p.borrowed),
		InitialLiquidity:   types.NewQuoteAmount(p.initial),
		InterestRateAnnual: p.rate,
		Utilization:        utilization,
	}
}

// ProjectInterest is the simple interest owed on principal after days at the annual rate.
func (p *Pool) ProjectInterest(principal types.QuoteAmount, days int) (types.QuoteAmount, error) {
	if days < 0 {
		return types.QuoteAmount{}, errorsmod.Wrapf(types.ErrInvalidAmount, "days %d", days)
	}
	yearly, err := fixedpoint.MulDec(principal.Int, p.rate)
	if err != nil {
		return types.QuoteAmount{}, err
	}
	owed, err := fixedpoint.MulDiv(yearly, math.NewInt(int64(days)), math.NewInt(daysPerYear))
	if err != nil {
		return types.QuoteAmount{}, err
	}
	return types.NewQuoteAmount(owed), nil
}

// Reset restores the initial liquidity and clears all borrowing.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.liquidity = p.initial
	p.borrowed = math.ZeroInt()
	p.logger.Info().Msg("Lending pool reset")
}
