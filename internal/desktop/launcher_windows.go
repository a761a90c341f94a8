//go:build windows

package desktop

import (
	"context"
	"log"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// BeforeClose Windows: 隐藏到托盘，后端继续运行；从托盘菜单退出
func (a *LauncherApp) BeforeClose(ctx context.Context) bool {
	if a.quitting.Load() {
		return false
	}
	log.Println("[Launcher] Window close requested - hiding to tray, backend keeps running")
	runtime.WindowHide(ctx)
	return true
}
