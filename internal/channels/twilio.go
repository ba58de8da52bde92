package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"church-automation/internal/common/logging"
	"church-automation/internal/config"
	"church-automation/internal/models"
)

// TwilioClient talks to the Twilio REST API. SMS, WhatsApp and voice
// channels share one client.
type TwilioClient struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

// NewTwilioClient builds a client from configuration. The base URL is
// overridable for tests.
func NewTwilioClient(cfg *config.Config, logger logging.Logger) *TwilioClient {
	return &TwilioClient{
		accountSID: cfg.TwilioAccountSID,
		authToken:  cfg.TwilioAuthToken,
		baseURL:    strings.TrimRight(cfg.TwilioAPIBaseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Configured reports whether credentials are present.
func (c *TwilioClient) Configured() bool {
	return c.accountSID != "" && c.authToken != ""
}

type twilioAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// post submits a form to a Twilio resource and maps provider failures
// onto DispatchError. Code 21211 (invalid phone number) is permanent;
// HTTP 429 is retryable rate limiting.
func (c *TwilioClient) post(ctx context.Context, channel models.ChannelType, resource string, form url.Values) error {
	if !c.Configured() {
		return &DispatchError{
			Channel:   channel,
			Message:   "twilio credentials are not configured",
			Permanent: true,
		}
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/%s.json", c.baseURL, c.accountSID, resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &DispatchError{Channel: channel, Message: err.Error(), Cause: err, Permanent: true}
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &DispatchError{Channel: channel, Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var apiErr twilioAPIError
	_ = json.Unmarshal(body, &apiErr)

	if resp.StatusCode == http.StatusTooManyRequests {
		return &DispatchError{
			Channel: channel,
			Code:    "rate-limited",
			Message: "twilio rate limit exceeded",
		}
	}
	if apiErr.Code == 21211 || apiErr.Code == 21614 {
		return &DispatchError{
			Channel:   channel,
			Code:      "invalid-recipient",
			Message:   apiErr.Message,
			Permanent: true,
		}
	}

	msg := apiErr.Message
	if msg == "" {
		msg = fmt.Sprintf("twilio returned status %d", resp.StatusCode)
	}
	return &DispatchError{
		Channel:   channel,
		Code:      fmt.Sprintf("%d", apiErr.Code),
		Message:   msg,
		Permanent: resp.StatusCode >= 400 && resp.StatusCode < 500,
	}
}

// SMSChannel delivers text messages via Twilio.
type SMSChannel struct {
	client *TwilioClient
	from   string
}

// NewSMSChannel creates the Twilio-backed SMS channel.
func NewSMSChannel(client *TwilioClient, fromPhone string) *SMSChannel {
	return &SMSChannel{client: client, from: fromPhone}
}

func (c *SMSChannel) Type() models.ChannelType {
	return models.ChannelSMS
}

func (c *SMSChannel) Send(ctx context.Context, msg models.Message) error {
	to := strings.TrimSpace(msg.To.Phone)
	if to == "" {
		return &DispatchError{
			Channel:   models.ChannelSMS,
			Code:      "invalid-recipient",
			Message:   "recipient has no phone number",
			Permanent: true,
		}
	}
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Body", msg.Body)
	return c.client.post(ctx, models.ChannelSMS, "Messages", form)
}

// WhatsAppChannel delivers WhatsApp messages via Twilio.
type WhatsAppChannel struct {
	client *TwilioClient
	from   string
}

// NewWhatsAppChannel creates the Twilio-backed WhatsApp channel.
func NewWhatsAppChannel(client *TwilioClient, from string) *WhatsAppChannel {
	return &WhatsAppChannel{client: client, from: from}
}

func (c *WhatsAppChannel) Type() models.ChannelType {
	return models.ChannelWhatsApp
}

func (c *WhatsAppChannel) Send(ctx context.Context, msg models.Message) error {
	to := strings.TrimSpace(msg.To.Phone)
	if to == "" {
		return &DispatchError{
			Channel:   models.ChannelWhatsApp,
			Code:      "invalid-recipient",
			Message:   "recipient has no phone number",
			Permanent: true,
		}
	}
	form := url.Values{}
	form.Set("To", "whatsapp:"+to)
	form.Set("From", "whatsapp:"+c.from)
	form.Set("Body", msg.Body)
	return c.client.post(ctx, models.ChannelWhatsApp, "Messages", form)
}

// PhoneChannel places an outbound call that reads the message body via
// text-to-speech. Used by schedule_phone_call actions.
type PhoneChannel struct {
	client *TwilioClient
	from   string
}

// NewPhoneChannel creates the Twilio-backed voice channel.
func NewPhoneChannel(client *TwilioClient, fromPhone string) *PhoneChannel {
	return &PhoneChannel{client: client, from: fromPhone}
}

func (c *PhoneChannel) Type() models.ChannelType {
	return models.ChannelPhone
}

func (c *PhoneChannel) Send(ctx context.Context, msg models.Message) error {
	to := strings.TrimSpace(msg.To.Phone)
	if to == "" {
		return &DispatchError{
			Channel:   models.ChannelPhone,
			Code:      "invalid-recipient",
			Message:   "recipient has no phone number",
			Permanent: true,
		}
	}
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Twiml", fmt.Sprintf("<Response><Say>%s</Say></Response>", xmlEscape(msg.Body)))
	return c.client.post(ctx, models.ChannelPhone, "Calls", form)
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}
