package types

import "time"

type TransactionKind string

const (
	TxDeposit        TransactionKind = "DEPOSIT"
	TxWithdraw       TransactionKind = "WITHDRAW"
	TxPositionOpened TransactionKind = "POSITION_OPENED"
	TxPositionClosed TransactionKind = "POSITION_CLOSED"
)

// Transaction is one of Deposit, Withdraw, PositionOpened, PositionClosed.
type Transaction interface {
	Kind() TransactionKind
	Meta() TxMeta
}

type TxMeta struct {
	ID         string     `json:"id"`
	Owner      string     `json:"owner"`
	CrucibleID CrucibleID `json:"crucible_id"`
	Timestamp  time.Time  `json:"timestamp"`
}

func (m TxMeta) Meta() TxMeta { return m }

type Deposit struct {
	TxMeta
	BaseIn        BaseAmount    `json:"base_in"`
	Fee           BaseAmount    `json:"fee"`
	WrappedMinted WrappedAmount `json:"wrapped_minted"`
	Rate          ExchangeRate  `json:"rate_after"`
}

type Withdraw struct {
	TxMeta
	WrappedBurned WrappedAmount `json:"wrapped_burned"`
	BaseGross     BaseAmount    `json:"base_gross"`
	Fee           BaseAmount    `json:"fee"`
	BaseReturned  BaseAmount    `json:"base_returned"`
	YieldUSD      UsdAmount     `json:"yield_usd"` // realized gain over cost basis, never negative
	Rate          ExchangeRate  `json:"rate"`
}

type PositionOpened struct {
	TxMeta
	Position Position `json:"position"`
}

type PositionClosed struct {
	TxMeta
	PositionID string      `json:"position_id"`
	Result     CloseResult `json:"result"`
}

func (Deposit) Kind() TransactionKind        { return TxDeposit }
func (Withdraw) Kind() TransactionKind       { return TxWithdraw }
func (PositionOpened) Kind() TransactionKind { return TxPositionOpened }
func (PositionClosed) Kind() TransactionKind { return TxPositionClosed }
