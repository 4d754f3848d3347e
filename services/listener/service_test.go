package listener

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/lenderinbox/config"
	"github.com/customeros/lenderinbox/internal/models"
)

func testListenerConfig() *config.ListenerConfig {
	cfg := config.DefaultListenerConfig()
	cfg.BackoffMin = time.Millisecond
	cfg.BackoffMax = 5 * time.Millisecond
	cfg.ConfigRefreshInterval = 20 * time.Millisecond
	return cfg
}

func TestRunOnce_SharedMailboxConnectsOnce(t *testing.T) {
	credentials := &fakeCredentials{rows: []*models.MailboxCredential{
		credential("app-1", "imap.broker.com", "apps@broker.com"),
		credential("app-2", "IMAP.BROKER.COM", "apps@broker.com"),
	}}
	dialer := newFakeDialer()
	client := newFakeClient(10)
	dialer.clients["imap.broker.com|apps@broker.com"] = client
	processor := &fakeProcessor{}
	service := NewService(credentials, dialer, processor, testListenerConfig(), testLogger())

	summary, err := service.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, dialer.totalDials())
	require.Len(t, summary.Mailboxes, 1)
	assert.Equal(t, []string{"app-1", "app-2"}, summary.Mailboxes[0].ApplicationIDs)
	assert.Equal(t, 1, summary.ProcessedCount)
	require.Len(t, processor.mailbox, 1)
	assert.True(t, processor.mailbox[0].Serves("app-1"))
	assert.True(t, processor.mailbox[0].Serves("app-2"))
	assert.Equal(t, 1, client.loggedOut)
	assert.NotEmpty(t, summary.RunID)
}

func TestRunOnce_ConnectionFailureIsMailboxLevel(t *testing.T) {
	credentials := &fakeCredentials{rows: []*models.MailboxCredential{
		credential("app-1", "imap.down.com", "apps@down.com"),
		credential("app-2", "imap.up.com", "apps@up.com"),
	}}
	dialer := newFakeDialer()
	dialer.errs["imap.down.com|apps@down.com"] = []error{errors.New("login failed")}
	dialer.clients["imap.up.com|apps@up.com"] = newFakeClient(1, 2)
	service := NewService(credentials, dialer, &fakeProcessor{}, testListenerConfig(), testLogger())

	summary, err := service.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Mailboxes, 2)
	assert.Equal(t, "login failed", summary.Mailboxes[0].Error)
	assert.Equal(t, 0, summary.Mailboxes[0].Processed)
	assert.Equal(t, 2, summary.Mailboxes[1].Processed)
	assert.Equal(t, 2, summary.ProcessedCount)
	assert.Equal(t, []string{"imap.down.com|apps@down.com: login failed"}, summary.Errors)

	status := service.Status()
	assert.Equal(t, "login failed", status["imap.down.com|apps@down.com"].LastError)
	assert.Equal(t, 2, status["imap.up.com|apps@up.com"].Processed)
}

func TestRunOnce_ConfigurationErrorPropagates(t *testing.T) {
	credentials := &fakeCredentials{err: errors.New("store unreachable")}
	service := NewService(credentials, newFakeDialer(), &fakeProcessor{}, testListenerConfig(), testLogger())

	summary, err := service.RunOnce(context.Background())

	assert.Nil(t, summary)
	assert.ErrorContains(t, err, "store unreachable")
}

func TestRunOnce_NoMailboxes(t *testing.T) {
	service := NewService(&fakeCredentials{}, newFakeDialer(), &fakeProcessor{}, testListenerConfig(), testLogger())

	summary, err := service.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Empty(t, summary.Mailboxes)
	assert.Equal(t, 0, summary.ProcessedCount)
}

func TestRun_ProcessesAndStops(t *testing.T) {
	credentials := &fakeCredentials{rows: []*models.MailboxCredential{
		credential("app-1", "imap.broker.com", "apps@broker.com"),
	}}
	dialer := newFakeDialer()
	client := newFakeClient(1, 2)
	dialer.clients["imap.broker.com|apps@broker.com"] = client
	service := NewService(credentials, dialer, &fakeProcessor{}, testListenerConfig(), testLogger())

	done := make(chan error, 1)
	go func() { done <- service.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return service.Status()["imap.broker.com|apps@broker.com"].Connected
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, client.seenCount(1))
	assert.Equal(t, 1, client.seenCount(2))

	service.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.Equal(t, 1, dialer.dialCount("imap.broker.com|apps@broker.com"))
}

func TestRun_ReconnectsAfterFailure(t *testing.T) {
	credentials := &fakeCredentials{rows: []*models.MailboxCredential{
		credential("app-1", "imap.broker.com", "apps@broker.com"),
	}}
	dialer := newFakeDialer()
	dialer.errs["imap.broker.com|apps@broker.com"] = []error{errors.New("i/o timeout"), errors.New("i/o timeout")}
	service := NewService(credentials, dialer, &fakeProcessor{}, testListenerConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	require.Eventually(t, func() bool {
		return dialer.dialCount("imap.broker.com|apps@broker.com") == 3 &&
			service.Status()["imap.broker.com|apps@broker.com"].Connected
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestRun_RefreshStartsAndStopsWorkers(t *testing.T) {
	credentials := &fakeCredentials{rows: []*models.MailboxCredential{
		credential("app-1", "imap.one.com", "apps@one.com"),
	}}
	dialer := newFakeDialer()
	service := NewService(credentials, dialer, &fakeProcessor{}, testListenerConfig(), testLogger())

	done := make(chan error, 1)
	go func() { done <- service.Run(context.Background()) }()
	defer func() {
		service.Stop()
		<-done
	}()

	require.Eventually(t, func() bool {
		return service.Status()["imap.one.com|apps@one.com"].Connected
	}, 2*time.Second, 5*time.Millisecond)

	credentials.set([]*models.MailboxCredential{
		credential("app-2", "imap.two.com", "apps@two.com"),
	})

	require.Eventually(t, func() bool {
		status := service.Status()
		_, stillOne := status["imap.one.com|apps@one.com"]
		return !stillOne && status["imap.two.com|apps@two.com"].Connected
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRun_AlreadyRunning(t *testing.T) {
	credentials := &fakeCredentials{}
	service := NewService(credentials, newFakeDialer(), &fakeProcessor{}, testListenerConfig(), testLogger())

	done := make(chan error, 1)
	go func() { done <- service.Run(context.Background()) }()
	require.Eventually(t, func() bool {
		service.mu.Lock()
		defer service.mu.Unlock()
		return service.cancel != nil
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, service.Run(context.Background()), ErrAlreadyRunning)

	service.Stop()
	assert.NoError(t, <-done)
}

func TestRun_InitialLoadErrorReturned(t *testing.T) {
	service := NewService(&fakeCredentials{err: errors.New("store unreachable")}, newFakeDialer(), &fakeProcessor{}, testListenerConfig(), testLogger())

	err := service.Run(context.Background())

	assert.ErrorContains(t, err, "store unreachable")
}

func TestRunOnce_WhileDaemonWatchesMailboxProcessesEachMessageOnce(t *testing.T) {
	credentials := &fakeCredentials{rows: []*models.MailboxCredential{
		credential("app-1", "imap.broker.com", "apps@broker.com"),
	}}
	dialer := newFakeDialer()
	client := newFakeClient(1, 2, 3)
	dialer.clients["imap.broker.com|apps@broker.com"] = client
	processor := &fakeProcessor{delay: 20 * time.Millisecond}
	service := NewService(credentials, dialer, processor, testListenerConfig(), testLogger())

	done := make(chan error, 1)
	go func() { done <- service.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(processor.callCounts()) > 0
	}, 2*time.Second, time.Millisecond)

	_, err := service.RunOnce(context.Background())
	require.NoError(t, err)

	service.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}

	assert.Equal(t, map[uint32]int{1: 1, 2: 1, 3: 1}, processor.callCounts())
	for _, uid := range []uint32{1, 2, 3} {
		assert.Equal(t, 1, client.seenCount(uid))
	}
}

func TestRunOnceForApplication_OnlyServingMailboxes(t *testing.T) {
	credentials := &fakeCredentials{rows: []*models.MailboxCredential{
		credential("app-1", "imap.one.com", "apps@one.com"),
		credential("app-2", "imap.two.com", "apps@two.com"),
	}}
	dialer := newFakeDialer()
	dialer.clients["imap.two.com|apps@two.com"] = newFakeClient(5)
	service := NewService(credentials, dialer, &fakeProcessor{}, testListenerConfig(), testLogger())

	summary, err := service.RunOnceForApplication(context.Background(), "APP-2")
	require.NoError(t, err)

	require.Len(t, summary.Mailboxes, 1)
	assert.Equal(t, "imap.two.com|apps@two.com", summary.Mailboxes[0].Key)
	assert.Equal(t, 1, summary.ProcessedCount)
	assert.Equal(t, 0, dialer.dialCount("imap.one.com|apps@one.com"))

	summary, err = service.RunOnceForApplication(context.Background(), "app-unknown")
	require.NoError(t, err)
	assert.Empty(t, summary.Mailboxes)
	assert.Equal(t, 1, dialer.totalDials())
}

func TestMailboxLocks_AcquireHonoursContext(t *testing.T) {
	locks := newMailboxLocks()

	release, err := locks.acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locks.acquire(context.Background(), "other")
	require.NoError(t, err)
	other()

	release()
	again, err := locks.acquire(context.Background(), "k")
	require.NoError(t, err)
	again()
}
