/**
 * @description
 * This package sends transactional email over SMTP. Templates are named and
 * parameterized so callers request "bookingConfirmed" with a params map
 * instead of assembling bodies inline. Sending is fire-and-forget from the
 * workflow's point of view: a failed send is logged and surfaced to the
 * caller, but never aborts the booking or payment flow that triggered it.
 *
 * @dependencies
 * - fmt, net/smtp, strings: Standard Go libraries.
 */
package mailer

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Mailer sends templated email. Implemented by SMTPMailer; stubbed in tests.
type Mailer interface {
	SendTemplated(to, templateName string, params map[string]string) error
}

// SMTPMailer sends email through a plain SMTP relay.
type SMTPMailer struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Sender       string
	PlatformName string
}

// NewSMTPMailer creates a mailer. An empty sender falls back to a no-reply
// address so misconfiguration does not silence email entirely.
func NewSMTPMailer(host, port, username, password, sender, platformName string) *SMTPMailer {
	if sender == "" {
		sender = "no-reply@localhost"
		log.Printf("level=warn component=mailer msg=\"sender not configured; using default\" sender=%s", sender)
	}
	if platformName == "" {
		platformName = "Soulsadhna"
	}
	return &SMTPMailer{
		Host:         host,
		Port:         port,
		Username:     username,
		Password:     password,
		Sender:       sender,
		PlatformName: platformName,
	}
}

type emailTemplate struct {
	subject string
	html    string
}

func (m *SMTPMailer) render(templateName string, params map[string]string) (*emailTemplate, error) {
	get := func(key string) string { return params[key] }

	switch templateName {
	case "bookingConfirmed":
		return &emailTemplate{
			subject: fmt.Sprintf("Your booking for %s is confirmed", get("eventTitle")),
			html: fmt.Sprintf(
				"<h1>Hello, %s!</h1>"+
					"<p>Your payment for <strong>%s</strong> was received and your seat is booked.</p>"+
					"<p>Join link: <a href=\"%s\">%s</a></p>"+
					"<p>Best regards,<br>The %s Team</p>",
				get("userName"), get("eventTitle"), get("meetLink"), get("meetLink"), m.PlatformName),
		}, nil
	case "paymentFailed":
		return &emailTemplate{
			subject: fmt.Sprintf("Payment for %s did not go through", get("eventTitle")),
			html: fmt.Sprintf(
				"<h1>Hello, %s</h1>"+
					"<p>Your payment attempt for <strong>%s</strong> was not successful. "+
					"No money has been booked against your seat; you can retry from the event page.</p>"+
					"<p>Best regards,<br>The %s Team</p>",
				get("userName"), get("eventTitle"), m.PlatformName),
		}, nil
	default:
		return nil, fmt.Errorf("unknown email template %q", templateName)
	}
}

// SendTemplated renders the named template and sends it to a single recipient.
func (m *SMTPMailer) SendTemplated(to, templateName string, params map[string]string) error {
	tmpl, err := m.render(templateName, params)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.Username != "" && m.Password != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	addr := fmt.Sprintf("%s:%s", m.Host, m.Port)
	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", m.Sender),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", tmpl.subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		tmpl.html,
	}, "\r\n")

	if err := smtp.SendMail(addr, auth, m.Sender, []string{to}, []byte(msg)); err != nil {
		log.Printf("level=warn component=mailer msg=\"smtp send failed\" to=%s template=%s err=%v", to, templateName, err)
		return err
	}
	log.Printf("level=info component=mailer msg=\"email sent\" to=%s template=%s", to, templateName)
	return nil
}
