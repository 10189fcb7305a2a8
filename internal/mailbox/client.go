package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// TransportError marks auth/network failures at the mailbox boundary. The
// caller retries the whole run on the next schedule tick, never inline.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("mailbox %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// RawEmail is the ephemeral, sanitized view of an unread message. It is
// consumed once by the extractor and the ledger, never persisted as-is.
type RawEmail struct {
	UID        imap.UID
	MessageID  string
	Subject    string
	From       string
	Body       string
	ReceivedAt time.Time
}

type Client struct {
	c       *imapclient.Client
	mailbox string
}

func TLSConfigFor(host string) *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: host,
	}
}

// Dial connects over TLS, logs in and selects the mailbox.
func Dial(ctx context.Context, addr, username, password, mailbox string, tlsCfg *tls.Config) (*Client, error) {
	if addr == "" {
		return nil, &TransportError{Op: "dial", Err: errors.New("imap addr is required")}
	}
	if username == "" || password == "" {
		return nil, &TransportError{Op: "login", Err: errors.New("imap username/password is required")}
	}
	if tlsCfg == nil {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if mailbox == "" {
		mailbox = "INBOX"
	}

	c, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: tlsCfg,
	})
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}

	// Abort a hung login/select on context cancel. Once setup is done the
	// watcher stops: the connection's lifetime belongs to the caller, not
	// to the dial context.
	setupDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-setupDone:
		}
	}()
	defer close(setupDone)

	if err := c.Login(username, password).Wait(); err != nil {
		_ = c.Close()
		return nil, &TransportError{Op: "login", Err: err}
	}

	if _, err := c.Select(mailbox, &imap.SelectOptions{ReadOnly: false}).Wait(); err != nil {
		_ = c.Close()
		return nil, &TransportError{Op: "select " + mailbox, Err: err}
	}

	return &Client{c: c, mailbox: mailbox}, nil
}

// Logout logs out then closes the connection.
func (cl *Client) Logout() {
	if cl == nil || cl.c == nil {
		return
	}
	if err := cl.c.Logout().Wait(); err != nil {
		log.Printf("[mailbox] logout: %v", err)
	}
	_ = cl.c.Close()
}
