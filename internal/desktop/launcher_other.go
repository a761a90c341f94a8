//go:build !windows

package desktop

import (
	"context"
	"log"
)

// BeforeClose 非 Windows: 没有托盘，关闭窗口即退出，后端在 Shutdown 中停止
func (a *LauncherApp) BeforeClose(ctx context.Context) bool {
	log.Printf("[Launcher] Window close requested (backend %s)", a.components.Supervisor.Status().State)
	return false
}
