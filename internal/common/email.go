package common

// EmailSender delivers transactional mail such as invoice receipts.
type EmailSender interface {
	Send(to, subject, html string) error
}

// InMemoryEmail captures outgoing mail for assertions in tests.
type InMemoryEmail struct {
	Outbox []Email
}

// Email is one captured message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Send appends the message to the outbox.
func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// NopEmailSender drops every message. Deployments without an SMTP relay use it.
type NopEmailSender struct{}

// Send implements EmailSender.
func (NopEmailSender) Send(string, string, string) error { return nil }
