package gormdb

// LaunchRecord 后端启动历史表
type LaunchRecord struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	CreatedAt int64  `gorm:"autoCreateTime:milli;not null;index"`
	UpdatedAt int64  `gorm:"autoUpdateTime:milli;not null"`

	LaunchID    string   `gorm:"size:36;not null;uniqueIndex"`
	Interpreter string   `gorm:"size:1024"`
	EntryPoint  string   `gorm:"size:1024"`
	PID         int      `gorm:"column:pid"`
	Attempts    LongText // JSON []string
	Outcome     string   `gorm:"size:16;not null;index"`
	Error       LongText
	ExitCode    *int
	ExitedAt    int64
}

// TableName keeps the table name stable across GORM naming changes.
func (LaunchRecord) TableName() string { return "launch_records" }

// AllModels returns every model for auto-migration.
func AllModels() []interface{} {
	return []interface{}{
		&LaunchRecord{},
	}
}
