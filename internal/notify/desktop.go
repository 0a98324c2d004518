package notify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rimio/sota-notifier/internal/queue"
)

const (
	DefaultCommand = "notify-send"
	DefaultAppName = "SOTA notifier"
)

// Desktop shells out to a notify-send compatible command on the dispatch queue. Notify
// only enqueues; command failures are logged by the worker.
type Desktop struct {
	command string
	appName string
	queue   *queue.Queue
	run     func(ctx context.Context, name string, args ...string) error
}

func NewDesktop(command, appName string, q *queue.Queue) *Desktop {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	if strings.TrimSpace(appName) == "" {
		appName = DefaultAppName
	}
	return &Desktop{command: command, appName: appName, queue: q, run: runCommand}
}

func (d *Desktop) Name() string { return "desktop" }

// Notify queues the command. It fails only when the queue refuses the job.
func (d *Desktop) Notify(ctx context.Context, n Notification) error {
	args := []string{"-a", d.appName, Body(n)}
	return d.queue.Submit(queue.Job{
		Name: fmt.Sprintf("desktop:%d", n.Spot.ID),
		Run: func(ctx context.Context) error {
			if err := d.run(ctx, d.command, args...); err != nil {
				return fmt.Errorf("%s: %w", d.command, err)
			}
			return nil
		},
	})
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
