package domain

import "time"

// LaunchOutcome 一次后端启动的最终结果
type LaunchOutcome string

var (
	LaunchOutcomeStarted  LaunchOutcome = "started"  // 进程已启动，尚未观察到退出
	LaunchOutcomeFailed   LaunchOutcome = "failed"   // 所有解释器都启动失败
	LaunchOutcomeExited   LaunchOutcome = "exited"   // 进程自行退出
	LaunchOutcomeStopped  LaunchOutcome = "stopped"  // 被外壳终止
	LaunchOutcomeOrphaned LaunchOutcome = "orphaned" // 外壳在进程退出前崩溃
)

// LaunchRecord 后端启动历史
type LaunchRecord struct {
	ID        uint64    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// 唯一启动 ID，与 backend.log 中的行前缀对应
	LaunchID string `json:"launchId"`

	Interpreter string `json:"interpreter"`
	EntryPoint  string `json:"entryPoint"`
	PID         int    `json:"pid"`

	// 每个候选解释器的尝试结果，按尝试顺序
	Attempts []string `json:"attempts"`

	Outcome  LaunchOutcome `json:"outcome"`
	Error    string        `json:"error"`
	ExitCode *int          `json:"exitCode"`
	ExitedAt *time.Time    `json:"exitedAt"`
}
