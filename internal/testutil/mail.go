// mail.go
//
// Recording mock for mail.Mailer.
package testutil

import (
	"context"
	"sync"
)

// SentMail is one message captured by MockMailer.
type SentMail struct {
	Subject    string
	Recipients []string
	Body       string
}

// MockMailer records every Send. Set SendErr to simulate a transport failure.
type MockMailer struct {
	SendErr error

	mu   sync.Mutex
	Sent []SentMail
}

func (m *MockMailer) Send(_ context.Context, subject string, recipients []string, textBody string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentMail{Subject: subject, Recipients: recipients, Body: textBody})
	return nil
}

// Last returns the most recent message, or false if nothing was sent.
func (m *MockMailer) Last() (SentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return SentMail{}, false
	}
	return m.Sent[len(m.Sent)-1], true
}

// Count returns how many messages were sent.
func (m *MockMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
