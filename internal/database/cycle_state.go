package database

import (
	"errors"
	"listing-tracker/internal/models"
	"time"

	"gorm.io/gorm"
)

// GetCycleState returns the singleton cycle state, or a zero state when no
// cycle has run yet
func (gdb *GormDB) GetCycleState() (*models.CycleState, error) {
	var state models.CycleState
	err := gdb.db.Where("id = ?", models.CycleStateID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.CycleState{ID: models.CycleStateID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// GetLastUpdate returns when the last cycle finished, nil if never
func (gdb *GormDB) GetLastUpdate() (*time.Time, error) {
	state, err := gdb.GetCycleState()
	if err != nil {
		return nil, err
	}
	return state.LastUpdate, nil
}

// SetLastUpdate stores the last-update timestamp
func (gdb *GormDB) SetLastUpdate(at time.Time) error {
	return gdb.updateCycleState(func(s *models.CycleState) {
		s.LastUpdate = &at
	})
}

// RecordCycle stores the outcome of one reconciliation cycle
func (gdb *GormDB) RecordCycle(runID string, at time.Time, cycleErr error) error {
	return gdb.updateCycleState(func(s *models.CycleState) {
		if cycleErr != nil {
			s.RecordFailure(runID, at, cycleErr)
			return
		}
		s.RecordSuccess(runID, at)
	})
}

func (gdb *GormDB) updateCycleState(apply func(*models.CycleState)) error {
	gdb.writeMu.Lock()
	defer gdb.writeMu.Unlock()

	return gdb.db.Transaction(func(tx *gorm.DB) error {
		var state models.CycleState
		err := tx.Where("id = ?", models.CycleStateID).First(&state).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			state = models.CycleState{ID: models.CycleStateID}
			apply(&state)
			return tx.Create(&state).Error
		} else if err != nil {
			return err
		}
		apply(&state)
		return tx.Save(&state).Error
	})
}
