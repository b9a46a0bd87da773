package registration

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ComputeFee is the authoritative charge for a party. Last-minute totals
// are rounded to whole currency units, regular totals to cents.
func ComputeFee(baseFee float64, partySize int, multiplier float64, lastMinute bool) float64 {
	total := baseFee * float64(partySize)
	if lastMinute {
		return math.Round(total * multiplier)
	}
	return math.Round(total*100) / 100
}

const ticketAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewTicketCode builds RANDOM-IDSUFFIX, e.g. "K3J9QA-4f1c2e" uppercased.
func NewTicketCode(id string) string {
	random := uuid.New()

	var b strings.Builder
	b.Grow(13)
	for i := 0; i < 6; i++ {
		b.WriteByte(ticketAlphabet[int(random[i])%len(ticketAlphabet)])
	}

	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}

	b.WriteByte('-')
	b.WriteString(strings.ToUpper(suffix))
	return b.String()
}

// Admission is everything the service decided about an attempt.
type Admission struct {
	EventID      string
	Registrant   Registrant
	Party        PartyInfo
	PartyKey     string
	FeeTotal     float64
	IsLastMinute bool
	At           time.Time
}

type Registrant struct {
	ID         string
	Name       string
	Email      string
	Department string
}

// New materializes an admitted registration with a fresh id and ticket code.
func New(a Admission) Registration {
	id := uuid.NewString()
	at := a.At.UTC()

	r := Registration{
		ID:              id,
		EventID:         a.EventID,
		RegistrantID:    a.Registrant.ID,
		Variant:         a.Party.Variant(),
		PartyKey:        a.PartyKey,
		PartyIdentifier: a.Party.Identifier(a.Registrant.ID),
		PartySize:       a.Party.Size(),
		Name:            a.Registrant.Name,
		Email:           a.Registrant.Email,
		Department:      a.Registrant.Department,
		FeeTotal:        a.FeeTotal,
		IsLastMinute:    a.IsLastMinute,
		PaymentStatus:   StatusPending,
		TicketCode:      NewTicketCode(id),
		RegisteredAt:    at,
		UpdatedAt:       at,
	}

	switch p := a.Party.(type) {
	case Individual:
		r.TicketType = p.TicketType
		r.SpecialRequirements = p.SpecialRequirements
		r.Dietary = p.Dietary
	case Team:
		r.Members = append([]Member(nil), p.Members...)
		r.PaperTitle = p.PaperTitle
		r.Abstract = p.Abstract
		r.PaymentProofRef = strings.TrimSpace(p.PaymentProofRef)
	}

	return r
}
