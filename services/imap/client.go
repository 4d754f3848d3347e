package imap

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/lenderinbox/dto"
	"github.com/customeros/lenderinbox/interfaces"
	lenderinbox_errors "github.com/customeros/lenderinbox/internal/errors"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/tracing"
	"github.com/customeros/lenderinbox/internal/utils"
)

const inboxFolder = "INBOX"

// Client wraps one logged-in go-imap connection with INBOX selected.
type Client struct {
	c             *client.Client
	key           string
	log           logger.Logger
	idleSupported bool
	pollInterval  time.Duration
	logoutTimeout time.Duration
}

var _ interfaces.MailboxClient = (*Client)(nil)

func (c *Client) SelectInbox(ctx context.Context) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "IMAPClient.SelectInbox")
	defer span.Finish()
	span.SetTag("mailbox", c.key)

	if c.c == nil {
		return lenderinbox_errors.ErrMailboxNotConnected
	}
	status, err := c.c.Select(inboxFolder, false)
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to select %s: %w", inboxFolder, err)
	}
	span.SetTag("messages", status.Messages)
	return nil
}

func (c *Client) SearchUnseenSince(ctx context.Context, since time.Time) ([]uint32, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "IMAPClient.SearchUnseenSince")
	defer span.Finish()
	span.SetTag("mailbox", c.key)
	span.SetTag("since", since.Format(time.RFC3339))

	uids, err := c.c.UidSearch(unseenSinceCriteria(since))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to search unseen messages: %w", err)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	span.SetTag("results", len(uids))
	return uids, nil
}

// Fetch reads the envelope and the full source without setting \Seen.
func (c *Client) Fetch(ctx context.Context, uid uint32) (*dto.InboundMessage, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "IMAPClient.Fetch")
	defer span.Finish()
	span.SetTag("mailbox", c.key)
	span.SetTag("uid", uid)

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.c.UidFetch(seqSet, items, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		if msg == nil {
			msg = m
		}
	}
	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to fetch uid %d: %w", uid, err)
	}
	if msg == nil {
		err := fmt.Errorf("message uid %d not found", uid)
		tracing.TraceErr(span, err)
		return nil, err
	}

	inbound, err := toInboundMessage(uid, msg)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return inbound, nil
}

func (c *Client) MarkSeen(ctx context.Context, uid uint32) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "IMAPClient.MarkSeen")
	defer span.Finish()
	span.SetTag("mailbox", c.key)
	span.SetTag("uid", uid)

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := c.c.UidStore(seqSet, item, flags, nil); err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to flag uid %d as seen: %w", uid, err)
	}
	return nil
}

// Logout ends the session, giving up after the logout timeout.
func (c *Client) Logout() error {
	if c.c == nil {
		return nil
	}
	c.c.Timeout = c.logoutTimeout

	done := make(chan error, 1)
	go func() {
		done <- c.c.Logout()
	}()

	select {
	case err := <-done:
		if err != nil && err != client.ErrAlreadyLoggedOut {
			c.log.Debugf("[%s] error during logout: %v", c.key, err)
			return err
		}
		c.log.Debugf("[%s] logged out", c.key)
		return nil
	case <-time.After(c.logoutTimeout):
		c.log.Warnf("[%s] logout timed out", c.key)
		return lenderinbox_errors.ErrConnectionTimeout
	}
}

func unseenSinceCriteria(since time.Time) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if !since.IsZero() {
		criteria.Since = since
	}
	return criteria
}

func toInboundMessage(uid uint32, msg *imap.Message) (*dto.InboundMessage, error) {
	inbound := &dto.InboundMessage{UID: uid}
	if msg.Uid != 0 {
		inbound.UID = msg.Uid
	}

	if envelope := msg.Envelope; envelope != nil {
		inbound.Subject = envelope.Subject
		inbound.ProviderMessageID = utils.NormalizeMessageID(envelope.MessageId)
		if !envelope.Date.IsZero() {
			inbound.Date = utils.ToPtr(envelope.Date.UTC())
		}
		for _, addr := range envelope.From {
			if addr != nil && addr.MailboxName != "" && addr.HostName != "" {
				inbound.Sender = addr.Address()
				break
			}
		}
	}

	for section, literal := range msg.Body {
		if section == nil || literal == nil {
			continue
		}
		if len(section.Path) == 0 && section.Specifier == imap.EntireSpecifier {
			raw, err := io.ReadAll(literal)
			if err != nil {
				return nil, fmt.Errorf("failed to read uid %d source: %w", inbound.UID, err)
			}
			inbound.Raw = raw
			break
		}
	}
	if inbound.Raw == nil {
		return nil, fmt.Errorf("uid %d returned no message source", inbound.UID)
	}
	return inbound, nil
}
