package gormdb

import (
	"errors"
	"time"

	"github.com/verba-project/verba/internal/domain"
	"github.com/verba-project/verba/internal/repository"
	"gorm.io/gorm"
)

type LaunchRecordRepository struct {
	db *DB
}

func NewLaunchRecordRepository(db *DB) *LaunchRecordRepository {
	return &LaunchRecordRepository{db: db}
}

var _ repository.LaunchRecordRepository = (*LaunchRecordRepository)(nil)

func (r *LaunchRecordRepository) Create(rec *domain.LaunchRecord) error {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	model := r.toModel(rec)
	if err := r.db.gorm.Create(model).Error; err != nil {
		return err
	}
	rec.ID = model.ID
	return nil
}

func (r *LaunchRecordRepository) GetByLaunchID(launchID string) (*domain.LaunchRecord, error) {
	var m LaunchRecord
	if err := r.db.gorm.Where("launch_id = ?", launchID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return r.toDomain(&m), nil
}

func (r *LaunchRecordRepository) MarkFinished(launchID string, outcome domain.LaunchOutcome, exitCode *int, errMsg string, at time.Time) error {
	result := r.db.gorm.Model(&LaunchRecord{}).
		Where("launch_id = ?", launchID).
		Updates(map[string]any{
			"outcome":    string(outcome),
			"exit_code":  exitCode,
			"error":      LongText(errMsg),
			"exited_at":  toTimestamp(at),
			"updated_at": time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *LaunchRecordRepository) ListRecent(limit int) ([]*domain.LaunchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []LaunchRecord
	if err := r.db.gorm.Order("created_at DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.LaunchRecord, len(models))
	for i := range models {
		out[i] = r.toDomain(&models[i])
	}
	return out, nil
}

// MarkStaleAsOrphaned 将上次运行遗留的 started 记录标记为 orphaned
func (r *LaunchRecordRepository) MarkStaleAsOrphaned() (int64, error) {
	result := r.db.gorm.Model(&LaunchRecord{}).
		Where("outcome = ?", string(domain.LaunchOutcomeStarted)).
		Updates(map[string]any{
			"outcome":    string(domain.LaunchOutcomeOrphaned),
			"updated_at": time.Now().UnixMilli(),
		})
	return result.RowsAffected, result.Error
}

func (r *LaunchRecordRepository) toModel(rec *domain.LaunchRecord) *LaunchRecord {
	return &LaunchRecord{
		ID:          rec.ID,
		CreatedAt:   toTimestamp(rec.CreatedAt),
		UpdatedAt:   toTimestamp(rec.UpdatedAt),
		LaunchID:    rec.LaunchID,
		Interpreter: rec.Interpreter,
		EntryPoint:  rec.EntryPoint,
		PID:         rec.PID,
		Attempts:    toJSON(rec.Attempts),
		Outcome:     string(rec.Outcome),
		Error:       LongText(rec.Error),
		ExitCode:    rec.ExitCode,
		ExitedAt:    toTimestampPtr(rec.ExitedAt),
	}
}

func (r *LaunchRecordRepository) toDomain(m *LaunchRecord) *domain.LaunchRecord {
	return &domain.LaunchRecord{
		ID:          m.ID,
		CreatedAt:   fromTimestamp(m.CreatedAt),
		UpdatedAt:   fromTimestamp(m.UpdatedAt),
		LaunchID:    m.LaunchID,
		Interpreter: m.Interpreter,
		EntryPoint:  m.EntryPoint,
		PID:         m.PID,
		Attempts:    fromJSON[[]string](m.Attempts),
		Outcome:     domain.LaunchOutcome(m.Outcome),
		Error:       m.Error.String(),
		ExitCode:    m.ExitCode,
		ExitedAt:    fromTimestampPtr(m.ExitedAt),
	}
}
