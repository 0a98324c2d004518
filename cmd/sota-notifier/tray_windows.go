//go:build windows

package main

import (
	"context"
	"log"

	"github.com/getlantern/systray"
)

// runTray shows a tray icon with a Quit item and blocks until either Quit is chosen or
// ctx ends.
func runTray(ctx context.Context, quit func()) {
	systray.Run(func() {
		systray.SetTitle("SOTA notifier")
		systray.SetTooltip("Watching SOTA spots")
		mQuit := systray.AddMenuItem("Quit", "Stop the notifier")
		go func() {
			select {
			case <-mQuit.ClickedCh:
				quit()
			case <-ctx.Done():
			}
			systray.Quit()
		}()
	}, func() {
		log.Printf("tray: closed")
	})
}
