package repository

import (
	"errors"
	"time"

	"github.com/verba-project/verba/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

type LaunchRecordRepository interface {
	Create(record *domain.LaunchRecord) error
	GetByLaunchID(launchID string) (*domain.LaunchRecord, error)
	// MarkFinished records the exit of a started launch
	MarkFinished(launchID string, outcome domain.LaunchOutcome, exitCode *int, errMsg string, at time.Time) error
	// ListRecent returns the newest records first
	ListRecent(limit int) ([]*domain.LaunchRecord, error)
	// MarkStaleAsOrphaned marks every record still in "started" as orphaned
	MarkStaleAsOrphaned() (int64, error)
}
