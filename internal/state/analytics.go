package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/forgelabs/crucible/internal/types"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
)

// TransactionRecord is a stored transaction as served by the history endpoints.
type TransactionRecord struct {
	ID         string                `json:"id"`
	Owner      string                `json:"owner"`
	CrucibleID types.CrucibleID      `json:"crucible_id"`
	Kind       types.TransactionKind `json:"kind"`
	Timestamp  time.Time             `json:"timestamp"`
	BaseAmount string                `json:"base_amount"`
	FeeAmount  string                `json:"fee_amount"`
	PositionID *string               `json:"position_id,omitempty"`
	Payload    json.RawMessage       `json:"payload"`
}

// SnapshotRecord is one stored pool snapshot.
type SnapshotRecord struct {
	SnapshotID  int64              `json:"snapshot_id"`
	CycleNumber int                `json:"cycle_number"`
	CycleID     string             `json:"cycle_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Snapshot    types.PoolSnapshot `json:"snapshot"`
}

// CrucibleSummary aggregates stored activity for one crucible.
type CrucibleSummary struct {
	CrucibleID        types.CrucibleID `json:"crucible_id"`
	TotalTransactions int              `json:"total_transactions"`
	Deposits          int              `json:"deposits"`
	Withdrawals       int              `json:"withdrawals"`
	PositionsOpened   int              `json:"positions_opened"`
	PositionsClosed   int              `json:"positions_closed"`
	UniqueOwners      int              `json:"unique_owners"`
	FeesTotal         string           `json:"fees_total"` // scaled base units
	LastActivity      *time.Time       `json:"last_activity,omitempty"`
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

func kindStrings(kinds []types.TransactionKind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return out
}

// GetOwnerTransactions returns an owner's stored transactions, newest first. An empty kinds
// slice matches every kind.
func GetOwnerTransactions(owner string, kinds []types.TransactionKind, limit int) ([]TransactionRecord, error) {
	if DB == nil {
		return nil, errNotInitialized
	}
	limit = clampLimit(limit)

	query := `
		SELECT tx_id, owner, crucible_id, kind, tx_timestamp, base_amount::TEXT, fee_amount::TEXT, position_id, payload
		FROM crucible_transactions
		WHERE owner = $1 AND (cardinality($2::TEXT[]) = 0 OR kind = ANY($2::TEXT[]))
		ORDER BY tx_timestamp DESC
		LIMIT $3
	`
	rows, err := DB.Query(query, owner, pq.Array(kindStrings(kinds)), limit)
	if err != nil {
		log.Error().Err(err).Str("owner", owner).Msg("Failed to query owner transactions")
		return nil, fmt.Errorf("failed to query transactions for %s: %w", owner, err)
	}
	defer rows.Close()

	var out []TransactionRecord
	for rows.Next() {
		var rec TransactionRecord
		var crucibleID, kind string
		var positionID sql.NullString
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.Owner, &crucibleID, &kind, &rec.Timestamp,
			&rec.BaseAmount, &rec.FeeAmount, &positionID, &payload); err != nil {
			log.Error().Err(err).Msg("Failed to scan transaction row")
			continue
		}
		rec.CrucibleID = types.CrucibleID(crucibleID)
		rec.Kind = types.TransactionKind(kind)
		if positionID.Valid {
			rec.PositionID = &positionID.String
		}
		rec.Payload = payload
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// GetRecentSnapshots returns a crucible's stored snapshots, newest first.
func GetRecentSnapshots(id types.CrucibleID, limit int) ([]SnapshotRecord, error) {
	if DB == nil {
		return nil, errNotInitialized
	}
	limit = clampLimit(limit)

	query := `
		SELECT snapshot_id, cycle_number, cycle_id, snapshot_timestamp, payload
		FROM crucible_snapshots
		WHERE crucible_id = $1
		ORDER BY snapshot_timestamp DESC
		LIMIT $2
	`
	rows, err := DB.Query(query, string(id), limit)
	if err != nil {
		log.Error().Err(err).Str("crucible", string(id)).Msg("Failed to query recent snapshots")
		return nil, fmt.Errorf("failed to query snapshots for %s: %w", id, err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		var payload []byte
		if err := rows.Scan(&rec.SnapshotID, &rec.CycleNumber, &rec.CycleID, &rec.Timestamp, &payload); err != nil {
			log.Error().Err(err).Msg("Failed to scan snapshot row")
			continue
		}
		if err := json.Unmarshal(payload, &rec.Snapshot); err != nil {
			log.Error().Err(err).Int64("snapshot_id", rec.SnapshotID).Msg("Failed to unmarshal snapshot payload")
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// GetCrucibleSummaries aggregates stored transactions per crucible.
func GetCrucibleSummaries() ([]CrucibleSummary, error) {
	if DB == nil {
		return nil, errNotInitialized
	}

	query := `
		SELECT
			crucible_id,
			COUNT(*),
			COUNT(CASE WHEN kind = $1 THEN 1 END),
			COUNT(CASE WHEN kind = $2 THEN 1 END),
			COUNT(CASE WHEN kind = $3 THEN 1 END),
			COUNT(CASE WHEN kind = $4 THEN 1 END),
			COUNT(DISTINCT owner),
			COALESCE(SUM(fee_amount), 0)::TEXT,
			MAX(tx_timestamp)
		FROM crucible_transactions
		GROUP BY crucible_id
		ORDER BY crucible_id
	`
	rows, err := DB.Query(query, string(types.TxDeposit), string(types.TxWithdraw),
		string(types.TxPositionOpened), string(types.TxPositionClosed))
	if err != nil {
		return nil, fmt.Errorf("failed to query crucible summaries: %w", err)
	}
	defer rows.Close()

	var out []CrucibleSummary
	for rows.Next() {
		var s CrucibleSummary
		var id string
		var last sql.NullTime
		if err := rows.Scan(&id, &s.TotalTransactions, &s.Deposits, &s.Withdrawals,
			&s.PositionsOpened, &s.PositionsClosed, &s.UniqueOwners, &s.FeesTotal, &last); err != nil {
			return nil, fmt.Errorf("failed to scan crucible summary: %w", err)
		}
		s.CrucibleID = types.CrucibleID(id)
		if last.Valid {
			t := last.Time
			s.LastActivity = &t
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("crucibles", len(out)).Msg("Retrieved crucible summaries")
	return out, nil
}
