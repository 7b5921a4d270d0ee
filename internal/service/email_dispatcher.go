package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const emailSendAttempts = 3

type emailJob struct {
	Email string
	Token string
}

// QueuedEmailSender decouples the identity core from mail delivery:
// enqueue returns immediately and a worker delivers with retries, so a
// provider outage can never fail or delay a registration.
type QueuedEmailSender struct {
	inner  EmailSender
	logger *logrus.Logger
	queue  chan emailJob
}

func NewQueuedEmailSender(inner EmailSender, logger *logrus.Logger, buffer int) *QueuedEmailSender {
	if buffer <= 0 {
		buffer = 128
	}
	return &QueuedEmailSender{
		inner:  inner,
		logger: logger,
		queue:  make(chan emailJob, buffer),
	}
}

// Start runs the delivery worker until ctx is cancelled.
func (q *QueuedEmailSender) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-q.queue:
				q.deliver(ctx, job)
			}
		}
	}()
}

// SendVerificationEmail enqueues the message and always reports success;
// delivery outcome is the worker's concern.
func (q *QueuedEmailSender) SendVerificationEmail(ctx context.Context, email string, token string) error {
	select {
	case q.queue <- emailJob{Email: email, Token: token}:
	default:
		q.logger.WithField("email", email).Warn("email queue full, dropping verification message")
	}
	return nil
}

func (q *QueuedEmailSender) deliver(ctx context.Context, job emailJob) {
	backoff := time.Second
	for attempt := 1; attempt <= emailSendAttempts; attempt++ {
		err := q.inner.SendVerificationEmail(ctx, job.Email, job.Token)
		if err == nil {
			return
		}
		q.logger.WithError(err).WithFields(logrus.Fields{
			"email":   job.Email,
			"attempt": attempt,
		}).Warn("verification email send failed")

		if attempt == emailSendAttempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}
