package mailer

import (
	"context"
	"errors"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender is the email transport capability. The background core never
// speaks SMTP directly; handlers go through this boundary so transport
// failures can be classified and the transport swapped in tests.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// PermanentError marks a send failure that retrying cannot fix, such as a
// rejected recipient address. Everything else is treated as transient.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as a permanent send failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is a permanent send failure.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
