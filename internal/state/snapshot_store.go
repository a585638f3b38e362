// ./internal/state/snapshot_store.go
package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/forgelabs/crucible/internal/types"
)

// SavePoolSnapshot saves one crucible's state as of a snapshot cycle.
func SavePoolSnapshot(cycleNumber int, cycleID string, at time.Time, snapshot types.PoolSnapshot) (int64, error) {
	if DB == nil {
		return 0, errNotInitialized
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal snapshot payload: %w", err)
	}

	query := `
		INSERT INTO crucible_snapshots (
			cycle_number, cycle_id, crucible_id, snapshot_timestamp,
			exchange_rate_scaled, total_wrapped, base_custody,
			tvl_usd, base_price_usd, fees_collected, yield_distributed,
			payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRow(
		query,
		cycleNumber, cycleID, string(snapshot.ID), at,
		snapshot.RateScaled.String(), snapshot.TotalWrapped.Amount.String(), snapshot.BaseCustody.Amount.String(),
		snapshot.TotalValueLocked.String(), snapshot.BasePriceUSD.String(),
		snapshot.FeesCollected.String(), snapshot.YieldDistributed.String(),
		payload,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save snapshot for %s: %w", snapshot.ID, err)
	}

	log.Debug().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", cycleNumber).
		Str("crucible", string(snapshot.ID)).
		Msg("Pool snapshot saved to database")
	return snapshotID, nil
}
