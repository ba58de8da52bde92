package models

// ChannelType identifies a communication medium.
type ChannelType string

const (
	ChannelEmail    ChannelType = "EMAIL"
	ChannelSMS      ChannelType = "SMS"
	ChannelWhatsApp ChannelType = "WHATSAPP"
	ChannelPush     ChannelType = "PUSH"
	ChannelPhone    ChannelType = "PHONE"
	ChannelFollowUp ChannelType = "FOLLOW_UP"
)

// PrimaryChannel maps an action type to the channel it dispatches on.
func PrimaryChannel(t ActionType) ChannelType {
	switch t {
	case ActionSendEmail:
		return ChannelEmail
	case ActionSendSMS:
		return ChannelSMS
	case ActionSendWhatsApp:
		return ChannelWhatsApp
	case ActionSendPush, ActionNotifyStaff:
		return ChannelPush
	case ActionSchedulePhoneCall:
		return ChannelPhone
	case ActionCreateFollowUp:
		return ChannelFollowUp
	default:
		return ChannelEmail
	}
}

// Recipient addresses a message. Exactly which fields matter depends on
// the channel: email uses Email, SMS/WhatsApp/voice use Phone, push uses
// UserID or Role or Broadcast.
type Recipient struct {
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role,omitempty"`
	Broadcast bool   `json:"broadcast,omitempty"`
}

// Message is the uniform payload handed to a channel dispatch port.
type Message struct {
	ChurchID string                 `json:"church_id"`
	To       Recipient              `json:"to"`
	Subject  string                 `json:"subject,omitempty"`
	Body     string                 `json:"body"`
	Priority Priority               `json:"priority,omitempty"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
}

// PushResult reports fan-out counts for push dispatch.
type PushResult struct {
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	TotalTargets int `json:"total_targets"`
}
