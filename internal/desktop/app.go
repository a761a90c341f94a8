package desktop

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/verba-project/verba/internal/backend"
	"github.com/verba-project/verba/internal/core"
	"github.com/verba-project/verba/internal/domain"
	"github.com/verba-project/verba/internal/version"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// EventBackendStatus carries a backend.Status to the front-end on every change.
const EventBackendStatus = "backend:status"

// emitFunc matches runtime.EventsEmit.
type emitFunc func(ctx context.Context, eventName string, optionalData ...interface{})

// LauncherApp 绑定到前端的桌面应用
type LauncherApp struct {
	components *core.Components
	emit       emitFunc
	quit       func(ctx context.Context)

	mu    sync.RWMutex
	ctx   context.Context
	ready chan struct{}

	shutdownOnce sync.Once
	// quitting is set by Quit so BeforeClose lets the window go.
	quitting atomic.Bool
}

// NewLauncherApp creates the bound application around c.
func NewLauncherApp(c *core.Components) *LauncherApp {
	a := &LauncherApp{
		components: c,
		emit:       runtime.EventsEmit,
		quit:       runtime.Quit,
		ready:      make(chan struct{}),
	}
	c.Supervisor.Subscribe(a.publishStatus)
	return a
}

// Startup 由 Wails OnStartup 调用，异步启动后端，避免阻塞界面
func (a *LauncherApp) Startup(ctx context.Context) {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()
	close(a.ready)

	log.Println("[Launcher] Application starting, launching backend...")
	go func() {
		// 结果通过 publishStatus 推送到前端，这里只记录日志
		if _, err := a.components.Supervisor.Start(ctx); err != nil {
			log.Printf("[Launcher] Backend launch failed: %v", err)
		}
	}()
}

// DomReady re-sends the current status so a front-end that subscribed after
// the launch still sees it.
func (a *LauncherApp) DomReady(ctx context.Context) {
	a.emit(ctx, EventBackendStatus, a.components.Supervisor.Status())
}

// Shutdown 由 Wails OnShutdown 调用：停止后端并释放资源
func (a *LauncherApp) Shutdown(ctx context.Context) {
	a.shutdownOnce.Do(func() {
		log.Println("[Launcher] Application shutting down...")
		if err := a.components.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Printf("[Launcher] Shutdown error: %v", err)
		}
	})
}

// Ready is closed once Startup has run.
func (a *LauncherApp) Ready() <-chan struct{} {
	return a.ready
}

// Context returns the Wails context, or nil before Startup.
func (a *LauncherApp) Context() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ctx
}

// OnStatus subscribes fn to backend status changes.
func (a *LauncherApp) OnStatus(fn func(backend.Status)) {
	a.components.Supervisor.Subscribe(fn)
}

func (a *LauncherApp) publishStatus(st backend.Status) {
	ctx := a.Context()
	if ctx == nil {
		return
	}
	a.emit(ctx, EventBackendStatus, st)
}

// ===== Bound methods =====

// StartBackend starts the backend, or reports the one already running.
func (a *LauncherApp) StartBackend() (string, error) {
	res, err := a.components.Supervisor.Start(a.callContext())
	if err != nil {
		return "", err
	}
	return res.Message, nil
}

// CheckMicrophonePermission always reports the permission as granted; no
// platform permission API is queried.
func (a *LauncherApp) CheckMicrophonePermission() bool {
	return true
}

// GetAppVersion returns the version embedded at build time.
func (a *LauncherApp) GetAppVersion() string {
	return version.Version
}

// GetBackendStatus 获取后端状态
func (a *LauncherApp) GetBackendStatus() backend.Status {
	return a.components.Supervisor.Status()
}

// StopBackend 停止后端
func (a *LauncherApp) StopBackend() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.components.ShutdownTimeout())
	defer cancel()
	return a.components.Supervisor.Stop(ctx)
}

// RestartBackend 重启后端
func (a *LauncherApp) RestartBackend() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.components.ShutdownTimeout())
	defer cancel()
	res, err := a.components.Supervisor.Restart(ctx)
	if err != nil {
		return "", err
	}
	return res.Message, nil
}

// GetLaunchHistory returns up to limit launches, newest first.
func (a *LauncherApp) GetLaunchHistory(limit int) ([]*domain.LaunchRecord, error) {
	if a.components.History == nil {
		return []*domain.LaunchRecord{}, nil
	}
	return a.components.History.Recent(limit)
}

// Quit 退出应用
func (a *LauncherApp) Quit() {
	a.quitting.Store(true)
	if ctx := a.Context(); ctx != nil {
		a.quit(ctx)
	}
}

func (a *LauncherApp) callContext() context.Context {
	if ctx := a.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
