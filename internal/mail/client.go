// Package mail implements the mail account behind the gmail_operation
// tool: IMAP reads, RFC 5322 composition, and SMTP delivery.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/Koi-west/claude-code-pet/internal/config"
)

// Envelope is the header summary of one message.
type Envelope struct {
	UID     uint32
	From    string
	Subject string
	Date    time.Time
	Seen    bool
}

// Client is a single-account IMAP client wrapping go-imap/v2 with
// lazy connection and mutex-serialized access.
type Client struct {
	cfg    config.IMAPConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *imapclient.Client
}

// NewClient creates an IMAP client. The connection is established on
// first use.
func NewClient(cfg config.IMAPConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}
}

// connectLocked dials and authenticates. Caller must hold c.mu.
func (c *Client) connectLocked() error {
	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}

	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))

	var opts imapclient.Options
	var client *imapclient.Client
	var err error
	if c.cfg.TLS {
		opts.TLSConfig = &tls.Config{ServerName: c.cfg.Host}
		client, err = imapclient.DialTLS(addr, &opts)
	} else {
		client, err = imapclient.DialInsecure(addr, &opts)
	}
	if err != nil {
		return fmt.Errorf("dial IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return fmt.Errorf("login as %s: %w", c.cfg.Username, err)
	}

	c.client = client
	c.logger.Info("IMAP connected", "host", c.cfg.Host, "user", c.cfg.Username)
	return nil
}

// ensureConnected reconnects when the connection is missing or stale.
// Caller must hold c.mu.
func (c *Client) ensureConnected() error {
	if c.client != nil {
		if err := c.client.Noop().Wait(); err == nil {
			return nil
		}
		c.logger.Debug("IMAP connection stale, reconnecting", "host", c.cfg.Host)
	}
	return c.connectLocked()
}

// Close logs out and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// ListRecent returns the newest count INBOX messages, newest first.
// When unseenOnly is set, only messages without \Seen are returned.
func (c *Client) ListRecent(ctx context.Context, count int, unseenOnly bool) ([]Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	if _, err := c.client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("select INBOX: %w", err)
	}

	criteria := &imap.SearchCriteria{}
	if unseenOnly {
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
	}

	searchData, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search INBOX: %w", err)
	}

	allUIDs := searchData.AllUIDs()
	if len(allUIDs) == 0 {
		return nil, nil
	}

	// Highest UIDs are the newest messages.
	if count > 0 && len(allUIDs) > count {
		allUIDs = allUIDs[len(allUIDs)-count:]
	}

	uidSet := imap.UIDSet{}
	for _, uid := range allUIDs {
		uidSet.AddNum(uid)
	}

	fetched, err := c.client.Fetch(uidSet, &imap.FetchOptions{
		UID:      true,
		Envelope: true,
		Flags:    true,
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch envelopes: %w", err)
	}

	envelopes := make([]Envelope, 0, len(fetched))
	for _, msg := range fetched {
		if msg.Envelope == nil {
			continue
		}
		envelopes = append(envelopes, Envelope{
			UID:     uint32(msg.UID),
			From:    formatSender(msg.Envelope.From),
			Subject: msg.Envelope.Subject,
			Date:    msg.Envelope.Date,
			Seen:    hasFlag(msg.Flags, imap.FlagSeen),
		})
	}

	// Newest first.
	for i, j := 0, len(envelopes)-1; i < j; i, j = i+1, j-1 {
		envelopes[i], envelopes[j] = envelopes[j], envelopes[i]
	}
	return envelopes, nil
}

func formatSender(addrs []imap.Address) string {
	if len(addrs) == 0 {
		return "(未知发件人)"
	}
	a := addrs[0]
	if a.Name != "" {
		return a.Name
	}
	return a.Mailbox + "@" + a.Host
}

func hasFlag(flags []imap.Flag, want imap.Flag) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
