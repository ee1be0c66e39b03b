// ABOUTME: Runs a subcommand under the bubbletea health monitor
// ABOUTME: Applies priority and strategy edits from the TUI to the manager
package main

import (
	"context"

	"github.com/Sendspin/sendspin-voice/internal/ui"
)

func withMonitor(ctx context.Context, a *app, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	control := ui.NewControl()
	prog := ui.Run(a.manager, control)

	uiDone := make(chan error, 1)
	go func() {
		_, err := prog.Run()
		uiDone <- err
	}()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	for {
		select {
		case change := <-control.Changes:
			if err := change.Apply(a.manager); err != nil {
				a.log.Warn().Err(err).Str("stream", change.StreamID).Msg("change rejected")
			}
		case <-control.Quit:
			cancel()
		case err := <-done:
			prog.Quit()
			<-uiDone
			return err
		case uiErr := <-uiDone:
			cancel()
			err := <-done
			if uiErr != nil {
				return uiErr
			}
			return err
		}
	}
}
