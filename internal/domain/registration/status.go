package registration

type Status string

const (
	StatusPending   Status = "Pending"
	StatusPaid      Status = "Paid"
	StatusCancelled Status = "Cancelled"
	StatusRefunded  Status = "Refunded"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// IsActive: only cancelled registrations release their seat and party key.
func (s Status) IsActive() bool {
	return s != StatusCancelled
}

func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusRefunded, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
