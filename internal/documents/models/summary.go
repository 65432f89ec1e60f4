package models

// VerificationSummary is the derived roll-up of an application's records.
// It is never stored; every read recomputes it.
type VerificationSummary struct {
	Total                int    `json:"total"`
	Uploaded             int    `json:"uploaded"`
	Verified             int    `json:"verified"`
	Rejected             int    `json:"rejected"`
	Pending              int    `json:"pending"`
	NotUploaded          int    `json:"not_uploaded"`
	CompletionPercentage int    `json:"completion_percentage"`
	OverallStatus        Status `json:"overall_status"`
}

// Summarize rolls up records into counts and an overall status.
//
// Overall status precedence: any rejected document makes the application
// rejected, since the applicant owes a correction. Otherwise any pending or
// missing document keeps it pending. Only when every document is verified is
// the application verified.
func Summarize(records []*DocumentRecord) VerificationSummary {
	s := VerificationSummary{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case StatusVerified:
			s.Verified++
		case StatusRejected:
			s.Rejected++
		case StatusPending:
			s.Pending++
		default:
			s.NotUploaded++
		}
	}
	s.Uploaded = s.Verified + s.Rejected + s.Pending
	if s.Total > 0 {
		s.CompletionPercentage = 100 * s.Verified / s.Total
	}

	switch {
	case s.Rejected > 0:
		s.OverallStatus = StatusRejected
	case s.Pending > 0 || s.NotUploaded > 0 || s.Total == 0:
		s.OverallStatus = StatusPending
	default:
		s.OverallStatus = StatusVerified
	}
	return s
}
