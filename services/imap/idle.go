package imap

import (
	"context"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/lenderinbox/internal/tracing"
)

// WaitForUpdate idles on INBOX until the server announces a mailbox change or
// the poll interval passes. go-imap falls back to NOOP polling when the server
// lacks IDLE.
func (c *Client) WaitForUpdate(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPClient.WaitForUpdate")
	defer span.Finish()
	span.SetTag("mailbox", c.key)
	span.SetTag("idle_supported", c.idleSupported)

	updates := make(chan client.Update, 100)
	c.c.Updates = updates
	defer func() {
		c.c.Updates = nil
	}()

	var stopOnce sync.Once
	stop := make(chan struct{})
	safeClose := func() {
		stopOnce.Do(func() {
			close(stop)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- c.c.Idle(stop, &client.IdleOptions{
			LogoutTimeout: defaultIdleRestart,
			PollInterval:  c.pollInterval,
		})
	}()

	finish := func() error {
		safeClose()
		select {
		case err := <-done:
			return err
		case <-time.After(c.logoutTimeout):
			return nil
		}
	}

	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for {
		select {
		case update := <-updates:
			if _, ok := update.(*client.MailboxUpdate); ok {
				span.SetTag("trigger", "update")
				return finish()
			}
		case err := <-done:
			if err != nil {
				tracing.TraceErr(span, err)
			}
			return err
		case <-timer.C:
			span.SetTag("trigger", "poll")
			return finish()
		case <-ctx.Done():
			_ = finish()
			return ctx.Err()
		}
	}
}
