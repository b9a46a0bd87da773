package registration

import (
	"strings"
)

const (
	MinTeamSize = 2
	MaxTeamSize = 4
)

// PartyInfo is either an Individual or a Team.
type PartyInfo interface {
	Variant() Variant
	Size() int
	// Key is the uniqueness key of the party within one event.
	Key(registrantID string) (string, error)
	// Identifier is the human readable party name.
	Identifier(registrantID string) string
}

type Individual struct {
	TicketType          string
	SpecialRequirements string
	Dietary             string
}

func (Individual) Variant() Variant { return VariantIndividual }

func (Individual) Size() int { return 1 }

func (Individual) Key(registrantID string) (string, error) {
	if strings.TrimSpace(registrantID) == "" {
		return "", ErrUnauthorized
	}
	return "user:" + registrantID, nil
}

func (Individual) Identifier(registrantID string) string { return registrantID }

type Team struct {
	TeamName        string
	DeclaredSize    int
	Members         []Member
	PaperTitle      string
	Abstract        string
	PaymentProofRef string
}

func (Team) Variant() Variant { return VariantTeam }

func (t Team) Size() int { return t.DeclaredSize }

func (t Team) Key(string) (string, error) {
	name := strings.TrimSpace(t.TeamName)
	if name == "" {
		return "", ErrInvalidParty
	}
	return "team:" + name, nil
}

func (t Team) Identifier(string) string { return strings.TrimSpace(t.TeamName) }

// Validate checks the roster and the payment proof.
func (t Team) Validate() error {
	if t.DeclaredSize < MinTeamSize || t.DeclaredSize > MaxTeamSize {
		return ErrInvalidPartySize
	}
	if len(t.Members) != t.DeclaredSize {
		return ErrInvalidPartySize
	}
	for _, m := range t.Members {
		if strings.TrimSpace(m.Name) == "" {
			return ErrInvalidParty
		}
	}
	if strings.TrimSpace(t.PaymentProofRef) == "" {
		return ErrMissingPaymentProof
	}
	return nil
}

const (
	TicketStandard  = "Standard"
	TicketPremium   = "Premium"
	TicketVIP       = "VIP"
	TicketEarlyBird = "Early Bird"
)

// ParseTicketType normalizes a ticket type; empty means Standard.
func ParseTicketType(s string) (string, error) {
	switch strings.TrimSpace(s) {
	case "", TicketStandard:
		return TicketStandard, nil
	case TicketPremium:
		return TicketPremium, nil
	case TicketVIP:
		return TicketVIP, nil
	case TicketEarlyBird:
		return TicketEarlyBird, nil
	default:
		return "", ErrInvalidTicketType
	}
}
