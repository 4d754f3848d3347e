package listener

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/enum"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/models"
)

func testLogger() logger.Logger {
	log := logger.NewAppLogger(&logger.Config{DevMode: true, LogLevel: "error"})
	log.InitLogger()
	return log
}

type fakeCredentials struct {
	mu   sync.Mutex
	rows []*models.MailboxCredential
	err  error
}

func (f *fakeCredentials) GetActiveMailboxCredentials(context.Context) ([]*models.MailboxCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, f.err
}

func (f *fakeCredentials) set(rows []*models.MailboxCredential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = rows
}

type fakeClient struct {
	mu         sync.Mutex
	uids       []uint32
	fetchErr   map[uint32]error
	selectErr  error
	seen       map[uint32]int
	loggedOut  int
	waitCalls  int
	waitForCtx bool
}

func newFakeClient(uids ...uint32) *fakeClient {
	return &fakeClient{
		uids:       uids,
		fetchErr:   map[uint32]error{},
		seen:       map[uint32]int{},
		waitForCtx: true,
	}
}

func (c *fakeClient) SelectInbox(context.Context) error {
	return c.selectErr
}

func (c *fakeClient) SearchUnseenSince(context.Context, time.Time) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var unseen []uint32
	for _, uid := range c.uids {
		if c.seen[uid] == 0 {
			unseen = append(unseen, uid)
		}
	}
	return unseen, nil
}

func (c *fakeClient) Fetch(_ context.Context, uid uint32) (*dto.InboundMessage, error) {
	if err := c.fetchErr[uid]; err != nil {
		return nil, err
	}
	return &dto.InboundMessage{UID: uid, Sender: "offers@fundco.com", Raw: []byte("body")}, nil
}

func (c *fakeClient) MarkSeen(_ context.Context, uid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[uid]++
	return nil
}

func (c *fakeClient) WaitForUpdate(ctx context.Context) error {
	c.mu.Lock()
	c.waitCalls++
	c.mu.Unlock()
	if c.waitForCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	return errors.New("connection closed")
}

func (c *fakeClient) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedOut++
	return nil
}

func (c *fakeClient) seenCount(uid uint32) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[uid]
}

type fakeDialer struct {
	mu      sync.Mutex
	clients map[string]*fakeClient
	errs    map[string][]error
	dials   map[string]int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		clients: map[string]*fakeClient{},
		errs:    map[string][]error{},
		dials:   map[string]int{},
	}
}

func (d *fakeDialer) Dial(_ context.Context, cfg *models.MailboxConfig) (interfaces.MailboxClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[cfg.Key]++
	if errs := d.errs[cfg.Key]; len(errs) > 0 {
		err := errs[0]
		d.errs[cfg.Key] = errs[1:]
		return nil, err
	}
	client, ok := d.clients[cfg.Key]
	if !ok {
		client = newFakeClient()
		d.clients[cfg.Key] = client
	}
	return client, nil
}

func (d *fakeDialer) dialCount(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[key]
}

func (d *fakeDialer) totalDials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, n := range d.dials {
		total += n
	}
	return total
}

type fakeProcessor struct {
	mu       sync.Mutex
	mailbox  []*models.MailboxConfig
	panicOn  map[uint32]bool
	statuses map[uint32]enum.OutcomeStatus
	delay    time.Duration
	calls    map[uint32]int
}

func (p *fakeProcessor) Process(_ context.Context, mailbox *models.MailboxConfig, message *dto.InboundMessage) dto.ProcessingOutcome {
	p.mu.Lock()
	p.mailbox = append(p.mailbox, mailbox)
	if p.calls == nil {
		p.calls = map[uint32]int{}
	}
	p.calls[message.UID]++
	p.mu.Unlock()
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.panicOn[message.UID] {
		panic("boom")
	}
	status := enum.OutcomeProcessed
	if s, ok := p.statuses[message.UID]; ok {
		status = s
	}
	return dto.ProcessingOutcome{UID: message.UID, Status: status}
}

func (p *fakeProcessor) callCounts() map[uint32]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[uint32]int, len(p.calls))
	for uid, n := range p.calls {
		counts[uid] = n
	}
	return counts
}

func credential(appID, host, username string) *models.MailboxCredential {
	return &models.MailboxCredential{
		ID:            "cred-" + appID,
		ApplicationID: appID,
		ImapHost:      host,
		ImapPort:      993,
		ImapUsername:  username,
		ImapPassword:  "secret",
		ImapSecurity:  "tls",
		Active:        true,
	}
}
