package jobs

import "time"

// RegistrationConfirmationPayload carries everything the notifier needs,
// so the worker never has to read the ledger.
type RegistrationConfirmationPayload struct {
	RegistrationID string    `json:"registrationId"`
	EventID        string    `json:"eventId"`
	EventTitle     string    `json:"eventTitle"`
	EventDate      time.Time `json:"eventDate"`
	RegistrantID   string    `json:"registrantId"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	TicketCode     string    `json:"ticketCode"`
	FeeTotal       float64   `json:"feeTotal"`
	IsLastMinute   bool      `json:"isLastMinute"`
	RequestedAt    time.Time `json:"requestedAt"`
}

type CancellationNoticePayload struct {
	RegistrationID string    `json:"registrationId"`
	EventID        string    `json:"eventId"`
	EventTitle     string    `json:"eventTitle"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	TicketCode     string    `json:"ticketCode"`
	RequestedAt    time.Time `json:"requestedAt"`
}
