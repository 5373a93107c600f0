package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
)

type SMTP struct {
	Addr     string `mapstructure:"addr"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`

	// UseTLS dials implicit TLS (port 465). Otherwise STARTTLS is used when offered.
	UseTLS             bool          `mapstructure:"use_tls"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	Timeout            time.Duration `mapstructure:"timeout"`
	SubjPrefix         string        `mapstructure:"subject_prefix"`
}

var _ notification.EmailSender = (*Mailer)(nil)

type Mailer struct {
	addr       string
	host       string
	auth       smtp.Auth
	useTLS     bool
	tlsConfig  *tls.Config
	timeout    time.Duration
	from       string
	subjPrefix string

	log *zap.Logger
}

func NewMailer(cfg SMTP, log *zap.Logger) *Mailer {
	h := host(cfg.Addr)
	var auth smtp.Auth
	if cfg.User != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, h)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Mailer{
		addr:       cfg.Addr,
		host:       h,
		auth:       auth,
		useTLS:     cfg.UseTLS,
		tlsConfig:  &tls.Config{ServerName: h, InsecureSkipVerify: cfg.InsecureSkipVerify},
		timeout:    cfg.Timeout,
		from:       cfg.From,
		subjPrefix: cfg.SubjPrefix,
		log:        obs.Component(log, "email-worker.mailer"),
	}
}

// Send delivers one message. SMTP replies surface as *textproto.Error so the
// caller can tell address rejections from transient failures.
func (m *Mailer) Send(ctx context.Context, msg notification.EmailMessage) error {
	subj := strings.TrimSpace(m.subjPrefix + " " + msg.Subject)
	raw, err := buildMessage(m.from, msg.To, subj, msg.Text, msg.HTML)
	if err != nil {
		return err
	}

	start := time.Now()
	log := obs.WithTrace(ctx, m.log).With(
		zap.String("smtp_addr", m.addr),
		zap.Bool("tls", m.useTLS),
		zap.String("to", msg.To),
		zap.String("subject", subj),
	)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	dialer := net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		log.Warn("smtp dial failed", zap.Error(err))
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if m.useTLS {
		conn = tls.Client(conn, m.tlsConfig)
	}

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close()
		log.Warn("smtp client failed", zap.Error(err))
		return err
	}
	defer func() { _ = c.Close() }()

	if !m.useTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(m.tlsConfig); err != nil {
				log.Warn("smtp STARTTLS failed", zap.Error(err))
				return err
			}
		}
	}
	if m.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(m.auth); err != nil {
				log.Warn("smtp auth failed", zap.Error(err))
				return err
			}
		}
	}
	if err := c.Mail(m.from); err != nil {
		log.Warn("smtp MAIL FROM failed", zap.Error(err))
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		log.Warn("smtp RCPT TO failed", zap.Error(err))
		return err
	}
	w, err := c.Data()
	if err != nil {
		log.Warn("smtp DATA failed", zap.Error(err))
		return err
	}
	if _, err := w.Write(raw); err != nil {
		log.Warn("smtp write failed", zap.Error(err))
		return err
	}
	if err := w.Close(); err != nil {
		log.Warn("smtp close failed", zap.Error(err))
		return err
	}
	_ = c.Quit()

	log.Info("email sent", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// buildMessage renders a text/plain message, or multipart/alternative when
// an HTML body is present.
func buildMessage(from, to, subject, text, html string) ([]byte, error) {
	var buf bytes.Buffer
	hdr := textproto.MIMEHeader{}
	hdr.Set("From", from)
	hdr.Set("To", to)
	hdr.Set("Subject", mime.QEncoding.Encode("utf-8", subject))
	hdr.Set("Date", time.Now().UTC().Format(time.RFC1123Z))
	hdr.Set("MIME-Version", "1.0")

	if html == "" {
		hdr.Set("Content-Type", "text/plain; charset=utf-8")
		hdr.Set("Content-Transfer-Encoding", "quoted-printable")
		writeHeader(&buf, hdr)
		if err := writeQP(&buf, text); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	hdr.Set("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	var head bytes.Buffer
	writeHeader(&head, hdr)

	for _, part := range []struct{ ctype, body string }{
		{"text/plain; charset=utf-8", text},
		{"text/html; charset=utf-8", html},
	} {
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.ctype},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		if err := writeQP(pw, part.body); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return append(head.Bytes(), buf.Bytes()...), nil
}

func writeHeader(buf *bytes.Buffer, hdr textproto.MIMEHeader) {
	for _, k := range []string{"From", "To", "Subject", "Date", "MIME-Version", "Content-Type", "Content-Transfer-Encoding"} {
		if v := hdr.Get(k); v != "" {
			fmt.Fprintf(buf, "%s: %s\r\n", k, v)
		}
	}
	buf.WriteString("\r\n")
}

func writeQP(w io.Writer, s string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(s)); err != nil {
		return err
	}
	return qp.Close()
}

// ValidAddress reports whether to is a single deliverable address.
func ValidAddress(to string) bool {
	a, err := mail.ParseAddress(to)
	return err == nil && a.Address != "" && strings.Contains(a.Address, "@")
}

func host(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}
