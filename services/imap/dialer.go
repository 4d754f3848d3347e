package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/lenderinbox/config"
	"github.com/customeros/lenderinbox/interfaces"
	"github.com/customeros/lenderinbox/internal/enum"
	lenderinbox_errors "github.com/customeros/lenderinbox/internal/errors"
	"github.com/customeros/lenderinbox/internal/logger"
	"github.com/customeros/lenderinbox/internal/models"
	"github.com/customeros/lenderinbox/internal/tracing"
)

const (
	defaultDialTimeout   = 30 * time.Second
	defaultLoginTimeout  = 30 * time.Second
	defaultLogoutTimeout = 5 * time.Second
	// IDLE is re-issued before servers drop it at 29 minutes.
	defaultIdleRestart = 25 * time.Minute
)

// Dialer opens authenticated go-imap connections for mailbox configs.
type Dialer struct {
	log           logger.Logger
	dialTimeout   time.Duration
	loginTimeout  time.Duration
	logoutTimeout time.Duration
	pollInterval  time.Duration
	tlsConfig     func(host string) *tls.Config
}

func NewDialer(log logger.Logger, cfg *config.ListenerConfig) *Dialer {
	if cfg == nil {
		cfg = config.DefaultListenerConfig()
	}
	pollInterval := cfg.IdlePollInterval
	if pollInterval <= 0 {
		pollInterval = config.DefaultListenerConfig().IdlePollInterval
	}
	return &Dialer{
		log:           log,
		dialTimeout:   defaultDialTimeout,
		loginTimeout:  defaultLoginTimeout,
		logoutTimeout: defaultLogoutTimeout,
		pollInterval:  pollInterval,
		tlsConfig: func(host string) *tls.Config {
			return &tls.Config{ServerName: host}
		},
	}
}

var _ interfaces.MailboxDialer = (*Dialer)(nil)

// Dial connects and logs in. Every failure wraps ErrMailboxNotConnectable.
func (d *Dialer) Dial(ctx context.Context, cfg *models.MailboxConfig) (interfaces.MailboxClient, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPDialer.Dial")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("mailbox", cfg.Key)
	span.SetTag("server", cfg.Host)
	span.SetTag("port", cfg.Port)
	span.SetTag("security", cfg.Security.String())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := d.connect(cfg)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(lenderinbox_errors.ErrMailboxNotConnectable, err.Error())
	}

	caps, err := c.Capability()
	if err != nil {
		_ = c.Logout()
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(lenderinbox_errors.ErrMailboxNotConnectable, fmt.Sprintf("failed to get capabilities: %v", err))
	}
	span.SetTag("server.capabilities", fmt.Sprintf("%v", caps))

	c.Timeout = d.loginTimeout
	if err = c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(lenderinbox_errors.ErrMailboxNotConnectable, fmt.Sprintf("failed to login as %s: %v", cfg.Username, err))
	}
	// no timeout for normal operations
	c.Timeout = 0

	idle, err := c.Support("IDLE")
	if err != nil {
		d.log.Warnf("[%s] error checking IDLE support: %v", cfg.Key, err)
	}
	span.SetTag("idle_supported", idle)

	d.log.Infof("[%s] connected and logged in to %s", cfg.Key, cfg.Address())
	return &Client{
		c:             c,
		key:           cfg.Key,
		log:           d.log,
		idleSupported: idle,
		pollInterval:  d.pollInterval,
		logoutTimeout: d.logoutTimeout,
	}, nil
}

func (d *Dialer) connect(cfg *models.MailboxConfig) (*client.Client, error) {
	serverAddr := cfg.Address()
	dialer := &net.Dialer{
		Timeout:   d.dialTimeout,
		KeepAlive: 30 * time.Second,
	}

	switch cfg.Security {
	case enum.EmailSecurityNone, enum.EmailSecurityStartTLS:
		c, err := client.DialWithDialer(dialer, serverAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
		}
		if cfg.Security == enum.EmailSecurityNone {
			return c, nil
		}
		ok, err := c.SupportStartTLS()
		if err != nil || !ok {
			_ = c.Logout()
			return nil, fmt.Errorf("server %s does not offer STARTTLS", serverAddr)
		}
		if err = c.StartTLS(d.tlsConfig(cfg.Host)); err != nil {
			_ = c.Logout()
			return nil, fmt.Errorf("STARTTLS with %s failed: %w", serverAddr, err)
		}
		return c, nil
	default:
		c, err := client.DialWithDialerTLS(dialer, serverAddr, d.tlsConfig(cfg.Host))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
		}
		return c, nil
	}
}
