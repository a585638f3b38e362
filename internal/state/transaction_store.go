package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"cosmossdk.io/math"

	"github.com/forgelabs/crucible/internal/types"
)

// transactionRow is the flattened, queryable part of a transaction. Everything else lives in
// the JSONB payload.
type transactionRow struct {
	BaseAmount math.Int
	FeeAmount  math.Int
	PositionID sql.NullString
	Payload    []byte
}

// encodeTransaction picks the base amount that moved and the fee charged for each kind.
func encodeTransaction(tx types.Transaction) (transactionRow, error) {
	var row transactionRow
	switch t := tx.(type) {
	case types.Deposit:
		row.BaseAmount, row.FeeAmount = t.BaseIn.Int, t.Fee.Int
	case types.Withdraw:
		row.BaseAmount, row.FeeAmount = t.BaseReturned.Int, t.Fee.Int
	case types.PositionOpened:
		row.BaseAmount, row.FeeAmount = t.Position.Collateral.Int, t.Position.OpenFee.Int
		row.PositionID = sql.NullString{String: t.Position.ID, Valid: true}
	case types.PositionClosed:
		row.BaseAmount, row.FeeAmount = t.Result.BaseReturned.Int, t.Result.FeeCharged.Int
		row.PositionID = sql.NullString{String: t.PositionID, Valid: true}
	default:
		return transactionRow{}, fmt.Errorf("unknown transaction type %T", tx)
	}
	if row.BaseAmount.IsNil() {
		row.BaseAmount = math.ZeroInt()
	}
	if row.FeeAmount.IsNil() {
		row.FeeAmount = math.ZeroInt()
	}

	payload, err := json.Marshal(tx)
	if err != nil {
		return transactionRow{}, fmt.Errorf("failed to marshal %s payload: %w", tx.Kind(), err)
	}
	row.Payload = payload
	return row, nil
}

// SaveTransaction mirrors one committed transaction. Saving the same transaction twice is a no-op.
func SaveTransaction(tx types.Transaction) error {
	if DB == nil {
		return errNotInitialized
	}
	row, err := encodeTransaction(tx)
	if err != nil {
		return err
	}
	meta := tx.Meta()

	query := `
		INSERT INTO crucible_transactions (
			tx_id, owner, crucible_id, kind, tx_timestamp,
			base_amount, fee_amount, position_id, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tx_id) DO NOTHING;
	`
	_, err = DB.Exec(query,
		meta.ID, meta.Owner, string(meta.CrucibleID), string(tx.Kind()), meta.Timestamp,
		row.BaseAmount.String(), row.FeeAmount.String(), row.PositionID, row.Payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", meta.ID, err)
	}
	return nil
}
