package mailer

import (
	"context"
	"errors"
	"net/textproto"

	"github.com/wneessen/go-mail"
)

// outcome describes what a failed submission says about the relay and the message.
type outcome struct {
	// relayFault is set for connection, timeout and 4xx answers. A 5xx reply is about the
	// message or the credentials and leaves the relay's breaker alone.
	relayFault bool
	// retryable is false once the message body may have reached the relay.
	retryable bool
}

func classify(err error) outcome {
	if errors.Is(err, context.Canceled) {
		return outcome{}
	}

	var se *mail.SendError
	if errors.As(err, &se) {
		switch se.Reason {
		case mail.ErrGetSender, mail.ErrGetRcpts, mail.ErrNoUnencoded:
			return outcome{}
		case mail.ErrWriteContent, mail.ErrSMTPDataClose:
			return outcome{relayFault: se.ErrorCode() < 500}
		}
		return byCode(se.ErrorCode())
	}

	var te *textproto.Error
	if errors.As(err, &te) {
		return byCode(te.Code)
	}

	return outcome{relayFault: true, retryable: true}
}

func byCode(code int) outcome {
	if code >= 500 {
		return outcome{}
	}
	return outcome{relayFault: true, retryable: true}
}
