package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
)

// SMTP sends mail through a single relay. Auth is optional for local
// development relays (mailhog and friends).
type SMTP struct {
	addr string // host:port
	auth smtp.Auth
	from string
}

func NewSMTP(host, port, user, pass, from string) *SMTP {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, pass, host)
	}
	return &SMTP{
		addr: net.JoinHostPort(host, port),
		auth: auth,
		from: from,
	}
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return Permanent(fmt.Errorf("invalid recipient %q: %w", msg.To, err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)

	errc := make(chan error, 1)
	go func() {
		errc <- smtp.SendMail(s.addr, s.auth, s.from, []string{msg.To}, []byte(b.String()))
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		return classify(err)
	}
}

// classify maps SMTP reply codes onto the transient/permanent split: 5xx
// replies are rejections retrying cannot fix, everything else (refused
// connections, timeouts, 4xx) is transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var proto *textproto.Error
	if errors.As(err, &proto) && proto.Code >= 500 {
		return Permanent(err)
	}
	return err
}
