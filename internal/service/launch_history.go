package service

import (
	"log"
	"time"

	"github.com/verba-project/verba/internal/backend"
	"github.com/verba-project/verba/internal/domain"
	"github.com/verba-project/verba/internal/repository"
)

// LaunchHistoryService 记录每次后端启动与退出
type LaunchHistoryService struct {
	repo repository.LaunchRecordRepository
}

// NewLaunchHistoryService creates the service.
func NewLaunchHistoryService(repo repository.LaunchRecordRepository) *LaunchHistoryService {
	return &LaunchHistoryService{repo: repo}
}

// RecoverStale marks launches left in "started" by a previous run as orphaned.
// Call it before the first launch of this run.
func (s *LaunchHistoryService) RecoverStale() {
	count, err := s.repo.MarkStaleAsOrphaned()
	if err != nil {
		log.Printf("[History] Warning: Failed to mark stale launches: %v", err)
		return
	}
	if count > 0 {
		log.Printf("[History] Marked %d stale launches as orphaned", count)
	}
}

// Record persists a supervisor status change. It is meant to be passed to
// backend.Supervisor.Subscribe; failures are logged, never returned.
func (s *LaunchHistoryService) Record(st backend.Status) {
	var err error
	switch st.State {
	case backend.StateRunning:
		err = s.repo.Create(&domain.LaunchRecord{
			CreatedAt:   st.StartedAt,
			LaunchID:    st.LaunchID,
			Interpreter: st.Interpreter,
			EntryPoint:  st.EntryPoint,
			PID:         st.PID,
			Attempts:    st.Attempts,
			Outcome:     domain.LaunchOutcomeStarted,
		})
	case backend.StateFailed:
		exitedAt := st.ExitedAt
		err = s.repo.Create(&domain.LaunchRecord{
			CreatedAt:  exitedAt,
			LaunchID:   st.LaunchID,
			EntryPoint: st.EntryPoint,
			Attempts:   st.Attempts,
			Outcome:    domain.LaunchOutcomeFailed,
			Error:      st.Error,
			ExitedAt:   &exitedAt,
		})
	case backend.StateExited, backend.StateStopped:
		outcome := domain.LaunchOutcomeExited
		if st.State == backend.StateStopped {
			outcome = domain.LaunchOutcomeStopped
		}
		at := st.ExitedAt
		if at.IsZero() {
			at = time.Now()
		}
		err = s.repo.MarkFinished(st.LaunchID, outcome, st.ExitCode, st.Error, at)
	default:
		return
	}

	if err != nil {
		log.Printf("[History] Failed to record %s launch %s: %v", st.State, st.LaunchID, err)
	}
}

// Recent returns the newest launch records.
func (s *LaunchHistoryService) Recent(limit int) ([]*domain.LaunchRecord, error) {
	return s.repo.ListRecent(limit)
}
