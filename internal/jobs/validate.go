package jobs

import "strings"

// ValidatePayload performs minimal validation on payloads before they are
// queued and again after they are decoded by the worker.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	trim := func(s string) string { return strings.TrimSpace(s) }

	switch t {
	case JobSendRegistrationConfirmation:
		var p RegistrationConfirmationPayload
		switch v := payload.(type) {
		case RegistrationConfirmationPayload:
			p = v
		case *RegistrationConfirmationPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.RegistrationID) == "" || trim(p.EventID) == "" || trim(p.Email) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	case JobSendCancellationNotice:
		var p CancellationNoticePayload
		switch v := payload.(type) {
		case CancellationNoticePayload:
			p = v
		case *CancellationNoticePayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.RegistrationID) == "" || trim(p.Email) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
