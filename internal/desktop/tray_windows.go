//go:build windows

package desktop

import (
	"context"
	_ "embed"
	"fmt"
	"log"

	"github.com/getlantern/systray"
	"github.com/verba-project/verba/internal/backend"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

//go:embed icon.ico
var iconData []byte

// TrayManager 管理系统托盘
type TrayManager struct {
	ctx               context.Context
	app               *LauncherApp
	menuShow          *systray.MenuItem
	menuBackendStatus *systray.MenuItem
	menuBackendDetail *systray.MenuItem
	menuRestart       *systray.MenuItem
	menuStop          *systray.MenuItem
	menuQuit          *systray.MenuItem
}

// NewTrayManager 创建托盘管理器
func NewTrayManager(ctx context.Context, app *LauncherApp) *TrayManager {
	return &TrayManager{
		ctx: ctx,
		app: app,
	}
}

// Start 启动托盘（阻塞，需在独立 goroutine 中调用）
func (t *TrayManager) Start() {
	systray.Run(t.onReady, t.onExit)
}

func (t *TrayManager) onReady() {
	log.Println("[Tray] Initializing system tray...")

	systray.SetIcon(iconData)
	systray.SetTitle("Verba")
	systray.SetTooltip("Verba")

	t.menuShow = systray.AddMenuItem("显示窗口", "显示主窗口")
	systray.AddSeparator()

	// 后端状态（只读）
	t.menuBackendStatus = systray.AddMenuItem("后端状态: 检查中...", "后端进程运行状态")
	t.menuBackendStatus.Disable()
	t.menuBackendDetail = systray.AddMenuItem("-", "后端解释器与 PID")
	t.menuBackendDetail.Disable()

	systray.AddSeparator()

	t.menuRestart = systray.AddMenuItem("重启后端", "重新启动后端进程")
	t.menuStop = systray.AddMenuItem("停止后端", "停止后端进程")

	systray.AddSeparator()

	t.menuQuit = systray.AddMenuItem("退出", "退出应用")

	t.UpdateStatus()
	t.app.OnStatus(func(backend.Status) { t.UpdateStatus() })

	go t.handleMenuEvents()
}

func (t *TrayManager) onExit() {
	log.Println("[Tray] System tray exited")
}

func (t *TrayManager) handleMenuEvents() {
	for {
		select {
		case <-t.menuShow.ClickedCh:
			log.Println("[Tray] Show window clicked")
			runtime.WindowShow(t.ctx)
			runtime.WindowUnminimise(t.ctx)

		case <-t.menuRestart.ClickedCh:
			log.Println("[Tray] Restart backend clicked")
			go func() {
				if _, err := t.app.RestartBackend(); err != nil {
					log.Printf("[Tray] Restart failed: %v", err)
				}
			}()

		case <-t.menuStop.ClickedCh:
			log.Println("[Tray] Stop backend clicked")
			go func() {
				if err := t.app.StopBackend(); err != nil {
					log.Printf("[Tray] Stop failed: %v", err)
				}
			}()

		case <-t.menuQuit.ClickedCh:
			log.Println("[Tray] Quitting application...")
			// runtime.Quit 触发 OnShutdown，由其停止后端
			t.app.Quit()
			systray.Quit()
			return
		}
	}
}

// UpdateStatus 更新托盘菜单状态
func (t *TrayManager) UpdateStatus() {
	if t.app == nil || t.menuBackendStatus == nil {
		return
	}

	st := t.app.GetBackendStatus()
	switch st.State {
	case backend.StateRunning:
		t.menuBackendStatus.SetTitle("后端状态: 运行中")
		t.menuBackendDetail.SetTitle(fmt.Sprintf("%s (PID %d)", st.Interpreter, st.PID))
		t.menuStop.Enable()
	case backend.StateFailed:
		t.menuBackendStatus.SetTitle("后端状态: 启动失败")
		t.menuBackendDetail.SetTitle(st.Error)
		t.menuStop.Disable()
	case backend.StateExited:
		code := -1
		if st.ExitCode != nil {
			code = *st.ExitCode
		}
		t.menuBackendStatus.SetTitle("后端状态: 已退出")
		t.menuBackendDetail.SetTitle(fmt.Sprintf("退出码 %d", code))
		t.menuStop.Disable()
	default:
		t.menuBackendStatus.SetTitle("后端状态: 已停止")
		t.menuBackendDetail.SetTitle("-")
		t.menuStop.Disable()
	}
}
