package enum

type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionSent      SubmissionStatus = "sent"
	SubmissionResponded SubmissionStatus = "responded"
	SubmissionApproved  SubmissionStatus = "approved"
	SubmissionRejected  SubmissionStatus = "rejected"
)

func (t SubmissionStatus) String() string {
	return string(t)
}

type OutcomeStatus string

const (
	OutcomeProcessed OutcomeStatus = "processed"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeErrored   OutcomeStatus = "errored"
)

func (t OutcomeStatus) String() string {
	return string(t)
}
