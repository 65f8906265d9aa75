// Package mailbox turns partner digest e-mails into listings. Each unseen
// message's HTML part is run through the same card selectors as a web page,
// and messages are flagged \Seen only once their run has reconciled them.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shalom-dev-bot/astremina/internal/domain"
	"github.com/shalom-dev-bot/astremina/internal/logger"
	"github.com/shalom-dev-bot/astremina/internal/scrape/html"
	"github.com/shalom-dev-bot/astremina/internal/scrape/types"
)

// PasswordFunc resolves the IMAP password for a keyring account.
type PasswordFunc func(account string) (string, error)

// Target is where a mailbox source reads from.
type Target struct {
	Addr   string
	User   string
	Folder string
	Max    int
	Since  time.Duration
	// Base resolves relative links found in the digests.
	Base string
}

// Account is the keyring account the password is stored under.
func (t Target) Account() string {
	host, _, err := net.SplitHostPort(t.Addr)
	if err != nil {
		host = t.Addr
	}
	return fmt.Sprintf("astremina:imap:%s@%s", t.User, host)
}

// TargetFor reads an imaps:// endpoint (imaps://user@host:993/Folder) and
// lets the extraction keys imap_host, imap_user, folder, max_messages,
// since_days and base_url override its parts.
func TargetFor(src domain.Source, cfg domain.ExtractionConfig) (Target, error) {
	t := Target{Folder: "INBOX", Max: 50, Since: 90 * 24 * time.Hour}

	if u, err := url.Parse(src.Endpoint); err == nil && strings.EqualFold(u.Scheme, "imaps") {
		t.Addr = u.Host
		if u.User != nil {
			t.User = u.User.Username()
		}
		if f := strings.Trim(u.Path, "/"); f != "" {
			t.Folder = f
		}
	}
	if v := cfg["imap_host"]; v != "" {
		t.Addr = v
	}
	if v := cfg["imap_user"]; v != "" {
		t.User = v
	}
	if v := cfg["folder"]; v != "" {
		t.Folder = v
	}
	if v := cfg["max_messages"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Target{}, fmt.Errorf("max_messages must be a positive integer, got %q", v)
		}
		t.Max = n
	}
	if v := cfg["since_days"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Target{}, fmt.Errorf("since_days must be a non-negative integer, got %q", v)
		}
		t.Since = time.Duration(n) * 24 * time.Hour
	}
	t.Base = cfg["base_url"]

	if t.Addr == "" || t.User == "" {
		return Target{}, errors.New("mailbox source needs an imap host and user")
	}
	if _, _, err := net.SplitHostPort(t.Addr); err != nil {
		t.Addr = net.JoinHostPort(t.Addr, "993")
	}
	return t, nil
}

type Scraper struct {
	src      domain.Source
	cfg      domain.ExtractionConfig
	target   Target
	dial     Dialer
	password PasswordFunc
	now      func() time.Time
}

func New(src domain.Source, cfg domain.ExtractionConfig, dial Dialer, password PasswordFunc) (*Scraper, error) {
	t, err := TargetFor(src, cfg)
	if err != nil {
		return nil, err
	}
	if dial == nil {
		dial = DialIMAP
	}
	if password == nil {
		return nil, errors.New("mailbox source needs a password lookup")
	}
	return &Scraper{src: src, cfg: cfg, target: t, dial: dial, password: password, now: time.Now}, nil
}

func (s *Scraper) Name() string { return "mailbox:" + s.src.Name }

// Fetch keeps the session open until Finalize runs so the \Seen flags are
// set on the same connection that read the messages.
func (s *Scraper) Fetch(ctx context.Context) (types.ScrapeResult, error) {
	pw, err := s.password(s.target.Account())
	if err != nil {
		return types.ScrapeResult{}, fmt.Errorf("imap password for %s: %w", s.target.Account(), err)
	}

	conn, err := s.dial(ctx, s.target.Addr, s.target.User, pw)
	if err != nil {
		return types.ScrapeResult{}, err
	}

	var since time.Time
	if s.target.Since > 0 {
		since = s.now().Add(-s.target.Since)
	}
	msgs, err := conn.Unseen(ctx, s.target.Folder, s.target.Max, since)
	if err != nil {
		_ = conn.Close()
		return types.ScrapeResult{}, err
	}

	log := logger.Named("mailbox").With(zap.String("source", s.src.Name))

	var (
		recs []domain.RawListing
		uids = make([]uint32, 0, len(msgs))
	)
	for _, m := range msgs {
		uids = append(uids, m.UID)
		body := htmlBody(m.Raw)
		if body == "" {
			log.Debug("digest without text part", zap.Uint32("uid", m.UID), zap.String("subject", m.Subject))
			continue
		}
		got, err := html.Parse([]byte(body), s.target.Base, s.cfg)
		if err != nil {
			log.Warn("digest parse failed", zap.Uint32("uid", m.UID), zap.Error(err))
			continue
		}
		recs = append(recs, got...)
	}

	finalize := func(ctx context.Context, ok bool) error {
		defer func() { _ = conn.Close() }()
		if !ok {
			return nil
		}
		return conn.MarkSeen(ctx, uids)
	}
	return types.ScrapeResult{Source: s.Name(), Records: recs, Finalize: finalize}, nil
}
