package notifications

import (
	"fmt"
	"strings"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Text    string
}

func ConfirmationMessage(in SendRegistrationConfirmationInput) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", greetingName(in.Name))
	fmt.Fprintf(&b, "You're registered for %s", titleOr(in.EventTitle, in.EventID))
	if in.EventDate != "" {
		fmt.Fprintf(&b, " on %s", in.EventDate)
	}
	b.WriteString(".\n\n")
	fmt.Fprintf(&b, "Ticket code: %s\n", in.TicketCode)
	fmt.Fprintf(&b, "Amount due: %.2f\n", in.FeeTotal)
	if in.IsLastMinute {
		b.WriteString("This was a last-minute registration and includes the late fee.\n")
	}
	fmt.Fprintf(&b, "\nRegistration id: %s\n", in.RegistrationID)

	return Message{
		To:      in.Email,
		Subject: "Registration confirmed: " + titleOr(in.EventTitle, in.EventID),
		Text:    b.String(),
	}
}

func CancellationMessage(in SendCancellationNoticeInput) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", greetingName(in.Name))
	fmt.Fprintf(&b, "Your registration for %s has been cancelled.\n", titleOr(in.EventTitle, in.EventID))
	if in.TicketCode != "" {
		fmt.Fprintf(&b, "Ticket %s is no longer valid.\n", in.TicketCode)
	}
	fmt.Fprintf(&b, "\nRegistration id: %s\n", in.RegistrationID)

	return Message{
		To:      in.Email,
		Subject: "Registration cancelled: " + titleOr(in.EventTitle, in.EventID),
		Text:    b.String(),
	}
}

func greetingName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "there"
	}
	return name
}

func titleOr(title, id string) string {
	if strings.TrimSpace(title) == "" {
		return "event " + id
	}
	return title
}
