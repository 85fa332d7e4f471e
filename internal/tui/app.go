// Package tui is the terminal front end of the HapTalk client.
package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/haptalk/internal/tui/keys"
	"github.com/matheus3301/haptalk/internal/tui/model"
	"github.com/matheus3301/haptalk/internal/tui/ui"
	"github.com/matheus3301/haptalk/internal/tui/views"
	"github.com/rivo/tview"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	vm        *model.ViewModel
	registry  *keys.Registry
	statusBar *views.StatusBar
	msgView   *views.MessageView
	composer  *views.Composer
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application for the given profile.
func NewApp(core model.Core, profileName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		vm:        model.NewViewModel(core),
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(),
		msgView:   views.NewMessageView(theme),
		composer:  views.NewComposer(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetIdentity(profileName, core.SessionID())
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.Add(&keys.Action{
		Name: "retry", Key: tcell.KeyCtrlR,
		Description: "^R:retry", Visible: true,
		Handler: func() { go a.retryFailed() },
	})
	a.registry.Add(&keys.Action{
		Name: "quit", Key: tcell.KeyCtrlQ,
		Description: "^Q:quit", Visible: true,
		Handler: func() { a.Stop() },
	})
	a.registry.Add(&keys.Action{
		Name: "top", Key: tcell.KeyCtrlT,
		Handler: func() { a.msgView.ScrollToBeginning() },
	})
	a.registry.Add(&keys.Action{
		Name: "bottom", Key: tcell.KeyCtrlB,
		Handler: func() { a.msgView.ScrollToEnd() },
	})
	a.statusBar.SetHints(a.registry.Hints())
}

func (a *App) setupCallbacks() {
	a.composer.SetOnSend(func(text string) {
		if cmd, ok := ParseCommand(text); ok {
			a.runCommand(cmd)
			return
		}
		text = Unescape(text)
		go func() {
			_ = a.vm.Send(a.ctx, text)
			a.refresh()
		}()
	})
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case CmdRetry:
		go a.retryFailed()
	case CmdQuit:
		a.Stop()
	default:
		a.vm.Flash.Set("Unknown command: /"+cmd.Name, 4*time.Second)
		a.statusBar.SetFlash(a.vm.Flash.Get())
	}
}

func (a *App) retryFailed() {
	_, _ = a.vm.RetryFailed(a.ctx)
	a.refresh()
}

func (a *App) setupLayout() {
	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 3, 0, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true).SetFocus(a.composer)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if a.registry.HandleEvent(event) {
			return nil
		}
		switch event.Key() {
		case tcell.KeyPgUp, tcell.KeyPgDn, tcell.KeyUp, tcell.KeyDown:
			// Scrolling goes to the history while the composer keeps focus.
			if handler := a.msgView.InputHandler(); handler != nil {
				handler(event, func(tview.Primitive) {})
			}
			return nil
		}
		return event
	})
}

// refresh reloads the view model and redraws.
func (a *App) refresh() {
	if err := a.vm.Refresh(); err != nil {
		a.vm.Flash.Set("Load failed: "+err.Error(), 4*time.Second)
	}
	a.app.QueueUpdateDraw(a.render)
}

func (a *App) render() {
	msgs := a.vm.GetMessages()
	a.msgView.Update(msgs)
	a.statusBar.SetState(a.vm.GetState())
	a.statusBar.SetFailed(model.CountFailed(msgs))
	a.statusBar.SetFlash(a.vm.Flash.Get())
}

// Run starts the TUI application and blocks until it quits.
func (a *App) Run() error {
	events, unsub := a.vm.Watch(64)
	go func() {
		defer unsub()
		a.refresh()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-events:
				a.refresh()
			case <-ticker.C:
				// Expires flash messages and advances the clock.
				a.app.QueueUpdateDraw(func() {
					a.statusBar.SetFlash(a.vm.Flash.Get())
				})
			case <-a.ctx.Done():
				return
			}
		}
	}()

	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
