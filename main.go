package main

import (
	"context"
	"embed"
	"log"
	goruntime "runtime"

	"github.com/verba-project/verba/internal/config"
	"github.com/verba-project/verba/internal/core"
	"github.com/verba-project/verba/internal/desktop"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 启动失败不在这里处理：由 Startup 异步启动后端并推送状态到前端
	components := core.Bootstrap(cfg, core.Options{})
	app := desktop.NewLauncherApp(components)

	// 托盘在独立 goroutine 中运行，等待 OnStartup 提供 context
	go func() {
		<-app.Ready()
		tray := desktop.NewTrayManager(app.Context(), app)
		tray.Start()
	}()

	// Create application menu (only for macOS)
	var appMenu *menu.Menu
	if goruntime.GOOS == "darwin" {
		appMenu = menu.NewMenu()
		appMenu.Append(menu.AppMenu())

		fileMenu := appMenu.AddSubmenu("File")
		fileMenu.AddText("Home", keys.CmdOrCtrl("h"), func(_ *menu.CallbackData) {
			if ctx := app.Context(); ctx != nil {
				runtime.WindowExecJS(ctx, `window.location.href = 'wails://wails/index.html';`)
			}
		})
		fileMenu.AddText("Restart Backend", keys.CmdOrCtrl("r"), func(_ *menu.CallbackData) {
			go func() {
				if _, err := app.RestartBackend(); err != nil {
					log.Printf("[Menu] Restart failed: %v", err)
				}
			}()
		})
		fileMenu.AddSeparator()
		fileMenu.AddText("Quit", keys.CmdOrCtrl("q"), func(_ *menu.CallbackData) {
			app.Quit()
		})

		// Edit Menu (for copy/paste support)
		appMenu.Append(menu.EditMenu())
	}

	err = wails.Run(&options.App{
		Title:     "Verba",
		Width:     1024,
		Height:    720,
		MinWidth:  800,
		MinHeight: 600,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 27, G: 38, B: 54, A: 1},
		OnStartup:        app.Startup,
		OnDomReady:       app.DomReady,
		OnBeforeClose:    app.BeforeClose,
		OnShutdown:       app.Shutdown,
		Bind: []interface{}{
			app,
		},
		Menu: appMenu,
		Debug: options.Debug{
			OpenInspectorOnStartup: false,
		},
		Windows: &windows.Options{
			WebviewIsTransparent: false,
			WindowIsTranslucent:  false,
			DisableWindowIcon:    false,
		},
		Mac: &mac.Options{
			TitleBar: &mac.TitleBar{
				TitlebarAppearsTransparent: false,
				HideTitle:                  false,
				HideTitleBar:               false,
				FullSizeContent:            false,
				UseToolbar:                 false,
				HideToolbarSeparator:       true,
			},
			Appearance: mac.NSAppearanceNameDarkAqua,
			About: &mac.AboutInfo{
				Title:   "Verba",
				Message: "Speech-to-text desktop launcher",
			},
		},
	})
	if err != nil {
		// wails.Run 失败时 OnShutdown 可能未被调用
		app.Shutdown(context.Background())
		log.Fatal("Error:", err)
	}
}
