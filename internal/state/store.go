package state

import (
	"time"

	"github.com/forgelabs/crucible/internal/types"
)

// Store exposes the package-level persistence functions as a value, for callers that take
// their persistence as a dependency.
type Store struct{}

func (Store) SaveTransaction(tx types.Transaction) error { return SaveTransaction(tx) }

func (Store) SavePoolSnapshot(cycleNumber int, cycleID string, at time.Time, s types.PoolSnapshot) error {
	_, err := SavePoolSnapshot(cycleNumber, cycleID, at, s)
	return err
}

func (Store) NextCycleNumber() (int, error) { return IncrementCycleNumber() }
