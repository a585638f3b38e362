// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/forgelabs/crucible/internal/fees"
)

// feeColumns are the fee_schedules rate columns, in Schedule field order.
const feeColumns = `wrap_fee, unwrap_fee, leveraged_open_fee, leveraged_close_fee,
            yield_on_interest_fee, liquidation_fee, yield_share`

func encodeSchedule(s fees.Schedule) []interface{} {
	return []interface{}{
		s.Wrap.String(), s.Unwrap.String(), s.LeveragedOpen.String(), s.LeveragedClose.String(),
		s.YieldOnInterest.String(), s.Liquidation.String(), s.YieldShare.String(),
	}
}

// decodeSchedule parses NUMERIC columns scanned as strings and validates the result.
func decodeSchedule(raw [7]string) (fees.Schedule, error) {
	var d [7]math.LegacyDec
	for i, r := range raw {
		v, err := math.LegacyNewDecFromStr(r)
		if err != nil {
			return fees.Schedule{}, fmt.Errorf("invalid fee column %d value %q: %w", i, r, err)
		}
		d[i] = v
	}
	s := fees.Schedule{
		Wrap:            d[0],
		Unwrap:          d[1],
		LeveragedOpen:   d[2],
		LeveragedClose:  d[3],
		YieldOnInterest: d[4],
		Liquidation:     d[5],
		YieldShare:      d[6],
	}
	if err := s.Validate(); err != nil {
		return fees.Schedule{}, err
	}
	return s, nil
}

// SaveFeeSchedule saves a new version of the fee schedule.
func SaveFeeSchedule(schedule fees.Schedule, configName string, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, errNotInitialized
	}
	if err := schedule.Validate(); err != nil {
		return 0, err
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE fee_schedules SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing fee schedule for %s: %w", configName, err)
		}
	}

	stmt := `
        INSERT INTO fee_schedules (
            version, config_name, is_active, activated_at, created_at,
            ` + feeColumns + `
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING schedule_id;`

	now := time.Now()
	args := append([]interface{}{version, configName, makeActive, now, now}, encodeSchedule(schedule)...)

	var scheduleID int64
	err = tx.QueryRow(stmt, args...).Scan(&scheduleID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert fee schedule: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("schedule_id", scheduleID).
		Bool("active", makeActive).
		Msg("Saved fee schedule")
	return scheduleID, nil
}

// LoadActiveFeeSchedule loads the currently active fee schedule.
func LoadActiveFeeSchedule(configName string) (*fees.Schedule, error) {
	if DB == nil {
		return nil, errNotInitialized
	}

	query := `
        SELECT ` + feeColumns + `
        FROM fee_schedules
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var raw [7]string
	err := DB.QueryRow(query, configName).Scan(&raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5], &raw[6])
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no active fee schedule found for config '%s'", configName)
		}
		return nil, fmt.Errorf("failed to scan active fee schedule for config '%s': %w", configName, err)
	}

	s, err := decodeSchedule(raw)
	if err != nil {
		return nil, fmt.Errorf("stored fee schedule for config '%s' is invalid: %w", configName, err)
	}
	log.Info().Str("config", configName).Msg("Loaded active fee schedule")
	return &s, nil
}

// LatestFeeScheduleVersion returns the highest stored version, 0 when none exist.
func LatestFeeScheduleVersion(configName string) (int, error) {
	if DB == nil {
		return 0, errNotInitialized
	}
	var version int
	err := DB.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM fee_schedules WHERE config_name = $1;`, configName).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest fee schedule version for '%s': %w", configName, err)
	}
	return version, nil
}
