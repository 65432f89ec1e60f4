package models

// ApplicationStatus is the read model returned by the status query: the
// application, its records in canonical order, and the derived summary.
type ApplicationStatus struct {
	Application *Application        `json:"application"`
	Documents   []*DocumentRecord   `json:"documents"`
	Summary     VerificationSummary `json:"summary"`
}
