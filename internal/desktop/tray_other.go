//go:build !windows

package desktop

import "context"

// TrayManager 非 Windows 平台不提供托盘：macOS 使用应用菜单，Linux 关闭窗口即退出
type TrayManager struct{}

func NewTrayManager(ctx context.Context, app *LauncherApp) *TrayManager {
	return &TrayManager{}
}

func (t *TrayManager) Start() {}

func (t *TrayManager) UpdateStatus() {}
