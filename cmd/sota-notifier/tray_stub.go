//go:build !windows

package main

import "context"

// runTray is a no-op outside Windows.
func runTray(context.Context, func()) {}
