package jobs

type JobType string

const (
	JobSendRegistrationConfirmation JobType = "send_registration_confirmation"
	JobSendCancellationNotice       JobType = "send_cancellation_notice"
)

// check to see if the job type is a known constant
func (t JobType) IsValid() bool {
	switch t {
	case JobSendRegistrationConfirmation, JobSendCancellationNotice:
		return true
	default:
		return false
	}
}
