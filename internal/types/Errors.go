package types

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// Codespace groups every error the crucible engine registers.
const Codespace = "crucible"

// Configuration errors. Fatal at construction.
var (
	ErrInvalidRate         = errorsmod.Register(Codespace, 2, "fee rate must be in [0, 1)")
	ErrInvalidConfig       = errorsmod.Register(Codespace, 3, "invalid crucible configuration")
	ErrUnsupportedLeverage = errorsmod.Register(Codespace, 4, "unsupported leverage factor")
)

// Input errors.
var (
	ErrParse         = errorsmod.Register(Codespace, 10, "malformed amount")
	ErrInvalidAmount = errorsmod.Register(Codespace, 11, "amount must be positive")
)

// Arithmetic errors. These point at a logic or configuration bug.
var (
	ErrOverflow        = errorsmod.Register(Codespace, 20, "arithmetic overflow")
	ErrDivideByZero    = errorsmod.Register(Codespace, 21, "division by zero")
	ErrNegativeOperand = errorsmod.Register(Codespace, 22, "negative operand")
)

// Domain errors. Always recoverable; the failing operation leaves state untouched.
var (
	ErrInsufficientWrappedBalance = errorsmod.Register(Codespace, 30, "insufficient wrapped balance")
	ErrInsufficientLiquidity      = errorsmod.Register(Codespace, 31, "insufficient liquidity")
	ErrOverRepayment              = errorsmod.Register(Codespace, 32, "repayment exceeds borrowed amount")
	ErrPositionAlreadyClosed      = errorsmod.Register(Codespace, 33, "position already closed")
	ErrPositionNotFound           = errorsmod.Register(Codespace, 34, "position not found")
	ErrNotPositionOwner           = errorsmod.Register(Codespace, 35, "position belongs to another owner")
	ErrUnknownCrucible            = errorsmod.Register(Codespace, 36, "unknown crucible")
	ErrPriceUnavailable           = errorsmod.Register(Codespace, 37, "price unavailable")
)

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func IsConfigError(err error) bool {
	return isAny(err, ErrInvalidRate, ErrInvalidConfig, ErrUnsupportedLeverage)
}

func IsParseError(err error) bool {
	return isAny(err, ErrParse)
}

func IsArithmeticError(err error) bool {
	return isAny(err, ErrOverflow, ErrDivideByZero, ErrNegativeOperand)
}

// IsDomainError reports whether err is an expected, caller-recoverable rejection.
func IsDomainError(err error) bool {
	return isAny(err,
		ErrInvalidAmount,
		ErrInsufficientWrappedBalance,
		ErrInsufficientLiquidity,
		ErrOverRepayment,
		ErrPositionAlreadyClosed,
		ErrPositionNotFound,
		ErrNotPositionOwner,
		ErrUnknownCrucible,
		ErrPriceUnavailable,
	)
}
