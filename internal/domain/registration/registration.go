package registration

import (
	"errors"
	"time"
)

type Variant string

const (
	VariantIndividual Variant = "individual"
	VariantTeam       Variant = "team"
)

type Member struct {
	Name  string `json:"name" bson:"name" binding:"required,min=1,max=120"`
	Email string `json:"email,omitempty" bson:"email" binding:"omitempty,email"`
}

type Registration struct {
	ID                  string    `json:"id" bson:"_id"`
	EventID             string    `json:"eventId" bson:"eventId"`
	RegistrantID        string    `json:"registrantId" bson:"registrantId"`
	Variant             Variant   `json:"variant" bson:"variant"`
	PartyKey            string    `json:"-" bson:"partyKey"`
	PartyIdentifier     string    `json:"partyIdentifier" bson:"partyIdentifier"`
	PartySize           int       `json:"partySize" bson:"partySize"`
	Name                string    `json:"name,omitempty" bson:"name"`
	Email               string    `json:"email,omitempty" bson:"email"`
	Department          string    `json:"department,omitempty" bson:"department"`
	TicketType          string    `json:"ticketType,omitempty" bson:"ticketType"`
	SpecialRequirements string    `json:"specialRequirements,omitempty" bson:"specialRequirements"`
	Dietary             string    `json:"dietary,omitempty" bson:"dietary"`
	Members             []Member  `json:"members,omitempty" bson:"members"`
	PaperTitle          string    `json:"paperTitle,omitempty" bson:"paperTitle"`
	Abstract            string    `json:"abstract,omitempty" bson:"abstract"`
	FeeTotal            float64   `json:"feeTotal" bson:"feeTotal"`
	IsLastMinute        bool      `json:"isLastMinute" bson:"isLastMinute"`
	PaymentStatus       Status    `json:"paymentStatus" bson:"paymentStatus"`
	PaymentProofRef     string    `json:"paymentProofRef,omitempty" bson:"paymentProofRef"`
	TicketCode          string    `json:"ticketCode" bson:"ticketCode"`
	RegisteredAt        time.Time `json:"registeredAt" bson:"registeredAt"`
	UpdatedAt           time.Time `json:"updatedAt" bson:"updatedAt"`
}

// IsActive reports whether the registration still holds its party key.
func (r Registration) IsActive() bool {
	return r.PaymentStatus.IsActive()
}

var (
	ErrNotFound            = errors.New("registration not found")
	ErrAlreadyRegistered   = errors.New("registration already exists")
	ErrEventFull           = errors.New("event is full")
	ErrEventClosed         = errors.New("event has already taken place")
	ErrInvalidPartySize    = errors.New("invalid party size")
	ErrMissingPaymentProof = errors.New("payment proof is required")
	ErrInvalidParty        = errors.New("invalid party details")
	ErrInvalidTicketType   = errors.New("invalid ticket type")
	ErrInvalidTransition   = errors.New("payment status transition not allowed")
	ErrInactive            = errors.New("registration is no longer active")
	ErrForbidden           = errors.New("not allowed to act on this registration")
	ErrUnauthorized        = errors.New("missing principal")

	// ErrConflict is returned by ledgers when a write loses against the
	// storage-level uniqueness or status guard.
	ErrConflict = errors.New("registration write conflict")
)

// CreateRegistrationRequest is the wire shape of a registration attempt.
// Team fields are only read when Variant is "team".
type CreateRegistrationRequest struct {
	Variant             string   `json:"variant" binding:"omitempty,oneof=individual team"`
	TicketType          string   `json:"ticketType" binding:"omitempty,max=40"`
	SpecialRequirements string   `json:"specialRequirements" binding:"omitempty,max=500"`
	Dietary             string   `json:"dietary" binding:"omitempty,max=200"`
	TeamName            string   `json:"teamName" binding:"omitempty,max=120"`
	MemberCount         int      `json:"memberCount" binding:"omitempty,min=0"`
	Members             []Member `json:"members" binding:"omitempty,max=10,dive"`
	PaperTitle          string   `json:"paperTitle" binding:"omitempty,max=200"`
	Abstract            string   `json:"abstract" binding:"omitempty,max=5000"`
	PaymentProofRef     string   `json:"paymentProofRef" binding:"omitempty,max=300"`
	LastMinute          bool     `json:"lastMinute"`

	// advisory only; the charged total is always computed server side
	TotalFees *float64 `json:"totalFees,omitempty"`
}

func (r CreateRegistrationRequest) PartyInfo() (PartyInfo, error) {
	switch Variant(r.Variant) {
	case VariantTeam:
		return Team{
			TeamName:        r.TeamName,
			DeclaredSize:    r.MemberCount,
			Members:         r.Members,
			PaperTitle:      r.PaperTitle,
			Abstract:        r.Abstract,
			PaymentProofRef: r.PaymentProofRef,
		}, nil
	case VariantIndividual, "":
		tt, err := ParseTicketType(r.TicketType)
		if err != nil {
			return nil, err
		}
		return Individual{
			TicketType:          tt,
			SpecialRequirements: r.SpecialRequirements,
			Dietary:             r.Dietary,
		}, nil
	default:
		return nil, ErrInvalidParty
	}
}

// Patch carries the display fields a registrant may change after admission.
type Patch struct {
	TicketType          *string `json:"ticketType" binding:"omitempty,max=40"`
	SpecialRequirements *string `json:"specialRequirements" binding:"omitempty,max=500"`
	Dietary             *string `json:"dietary" binding:"omitempty,max=200"`
}

func (p Patch) Empty() bool {
	return p.TicketType == nil && p.SpecialRequirements == nil && p.Dietary == nil
}

// Apply returns a copy of r with the patch applied.
func (p Patch) Apply(r Registration) (Registration, error) {
	if p.TicketType != nil {
		tt, err := ParseTicketType(*p.TicketType)
		if err != nil {
			return Registration{}, err
		}
		r.TicketType = tt
	}
	if p.SpecialRequirements != nil {
		r.SpecialRequirements = *p.SpecialRequirements
	}
	if p.Dietary != nil {
		r.Dietary = *p.Dietary
	}
	return r, nil
}

type PaymentRequest struct {
	Status string `json:"status" binding:"required,oneof=Pending Paid Cancelled Refunded"`
}
