package app

import (
	"context"
	"errors"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/voxdesk/internal/bridge"
	"github.com/dshills/voxdesk/internal/ui"
)

// RunWindow starts the backend and runs the terminal window on screen until
// it is closed. Closing the window tears the backend down.
func (app *Application) RunWindow(screen tcell.Screen) error {
	cfg := app.Config()
	w := ui.NewWindow(screen, ui.Options{Title: "voxdesk", Scrollback: cfg.UI.Scrollback})

	app.mu.Lock()
	if app.window != nil {
		app.mu.Unlock()
		return ErrAlreadyRunning
	}
	app.window = w
	app.mu.Unlock()

	app.SetEmitter(w)
	w.OnCommand(app.SubmitCommand)
	w.OnLifecycle(func(ev ui.WindowEvent) {
		if ev == ui.WindowCreated {
			app.Start()
		}
		app.HandleWindowEvent(ev)
	})

	err := w.Run()

	app.SetEmitter(nil)
	return err
}

// RunHeadless starts the backend, writes notifications to sink, and blocks
// until ctx is done. Cancellation goes through the same teardown as closing
// the window.
func (app *Application) RunHeadless(ctx context.Context, sink bridge.Emitter) {
	app.SetEmitter(sink)
	app.HandleWindowEvent(ui.WindowCreated)
	app.Start()

	<-ctx.Done()

	app.HandleWindowEvent(ui.WindowDestroyed)
}

// CloseWindow asks the window, if any, to close.
func (app *Application) CloseWindow() {
	app.mu.RLock()
	w := app.window
	app.mu.RUnlock()

	if w != nil {
		w.Close()
	}
}

// SubmitCommand runs a command typed into the window. Errors are reported
// as log notifications; "quit" closes the window.
func (app *Application) SubmitCommand(args []string) {
	_, err := app.RunCommand(context.Background(), args)
	switch {
	case err == nil:
	case errors.Is(err, ErrQuit):
		app.CloseWindow()
	default:
		_ = app.Emit(bridge.LogNotification(err.Error()))
	}
}

// refreshStatus pushes the backend status to the window.
func (app *Application) refreshStatus() {
	app.mu.RLock()
	w := app.window
	app.mu.RUnlock()

	if w != nil {
		w.SetStatus(app.Status())
	}
}
