package channels

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"church-automation/internal/common/logging"
	"church-automation/internal/config"
	"church-automation/internal/models"
)

// EmailChannel delivers messages over SMTP.
type EmailChannel struct {
	config *config.Config
	logger logging.Logger
}

// NewEmailChannel creates the SMTP-backed email channel.
func NewEmailChannel(cfg *config.Config, logger logging.Logger) *EmailChannel {
	return &EmailChannel{config: cfg, logger: logger}
}

func (c *EmailChannel) Type() models.ChannelType {
	return models.ChannelEmail
}

// Send delivers the message to the recipient's email address. Missing
// configuration and missing addresses are permanent failures; transport
// errors are retryable.
func (c *EmailChannel) Send(ctx context.Context, msg models.Message) error {
	if !c.config.SMTPEnabled {
		return &DispatchError{
			Channel:   models.ChannelEmail,
			Message:   "SMTP is not enabled",
			Permanent: true,
		}
	}
	to := strings.TrimSpace(msg.To.Email)
	if to == "" || !strings.Contains(to, "@") {
		return &DispatchError{
			Channel:   models.ChannelEmail,
			Code:      "invalid-recipient",
			Message:   "recipient has no valid email address",
			Permanent: true,
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.send(to, msg.Subject, msg.Body); err != nil {
		return &DispatchError{
			Channel: models.ChannelEmail,
			Message: err.Error(),
			Cause:   err,
		}
	}

	c.logger.Debug("email sent",
		logging.String("to", to),
		logging.String("church_id", msg.ChurchID))
	return nil
}

func (c *EmailChannel) send(to, subject, body string) error {
	from := c.config.SMTPFrom
	if c.config.SMTPFromName != "" {
		from = fmt.Sprintf("%s <%s>", c.config.SMTPFromName, c.config.SMTPFrom)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	message := []byte(b.String())

	auth := smtp.PlainAuth("", c.config.SMTPUsername, c.config.SMTPPassword, c.config.SMTPHost)
	addr := fmt.Sprintf("%s:%s", c.config.SMTPHost, c.config.SMTPPort)

	if c.config.SMTPUseSSL {
		return c.sendWithSSL(addr, auth, c.config.SMTPFrom, []string{to}, message)
	}
	return smtp.SendMail(addr, auth, c.config.SMTPFrom, []string{to}, message)
}

// sendWithSSL sends over an implicit TLS connection instead of STARTTLS.
func (c *EmailChannel) sendWithSSL(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host := c.config.SMTPHost
	port, _ := strconv.Atoi(c.config.SMTPPort)

	conn, err := tls.Dial("tcp", fmt.Sprintf("%s:%d", host, port), &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err = client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err = client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err = w.Write(msg); err != nil {
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
