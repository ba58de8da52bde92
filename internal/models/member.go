package models

import "time"

// Member is a church member record. The engine keeps only the fields
// its triggers read: contact details for delivery payloads and the
// dates the daily sweep turns into BIRTHDAY and ANNIVERSARY events.
type Member struct {
	ID              string     `json:"id"`
	ChurchID        string     `json:"church_id"`
	Name            string     `json:"name"`
	Email           string     `json:"email,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	BirthDate       *time.Time `json:"birth_date,omitempty"`
	AnniversaryDate *time.Time `json:"anniversary_date,omitempty"`
	JoinedAt        time.Time  `json:"joined_at"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
}
