/*

This file manages the persistent snapshot cycle counter.
The counter is stored in the database so cycle numbers keep increasing across restarts.

*/

package state

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ensureCycleCounterTable creates the cycle_counter table if it doesn't exist
func ensureCycleCounterTable() error {
	if DB == nil {
		return errNotInitialized
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		INSERT INTO cycle_counter (id, current_cycle)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`

	if _, err := DB.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create cycle_counter table: %w", err)
	}
	return nil
}

// GetCurrentCycleNumber retrieves the last snapshot cycle number.
func GetCurrentCycleNumber() (int, error) {
	if DB == nil {
		return 0, errNotInitialized
	}

	var currentCycle int
	err := DB.QueryRow(`SELECT current_cycle FROM cycle_counter WHERE id = 1;`).Scan(&currentCycle)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Warn().Msg("No cycle counter row found, starting from 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current cycle number: %w", err)
	}
	return currentCycle, nil
}

// IncrementCycleNumber increments the cycle counter and returns the new value
func IncrementCycleNumber() (int, error) {
	if DB == nil {
		return 0, errNotInitialized
	}

	updateQuery := `
		UPDATE cycle_counter
		SET current_cycle = current_cycle + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_cycle;`

	var newCycle int
	if err := DB.QueryRow(updateQuery).Scan(&newCycle); err != nil {
		return 0, fmt.Errorf("failed to increment cycle number: %w", err)
	}

	log.Debug().Int("newCycle", newCycle).Msg("Incremented cycle counter")
	return newCycle, nil
}
