// Package delivery hands one-time codes to the outside world: an SMTP
// mailer for production, a writer-backed sender for development and an
// asynchronous wrapper that decouples request latency from the mail server.
package delivery

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Sender delivers a code to address. Implementations must not log the code.
type Sender interface {
	SendCode(ctx context.Context, address, code string) error
}

// WriterSender prints codes to w. It is meant for local development where
// no mail server is available.
type WriterSender struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSender(w io.Writer) *WriterSender {
	return &WriterSender{w: w}
}

func (s *WriterSender) SendCode(_ context.Context, address, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "one-time code for %s: %s\n", address, code)
	return err
}
