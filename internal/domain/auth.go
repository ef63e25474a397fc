package domain

// SubjectType differentiates the two principal kinds carried in tokens:
// end-users who request changes and staff who approve or implement them.
type SubjectType string

const (
	SubjectTypeUser  SubjectType = "USER"
	SubjectTypeStaff SubjectType = "STAFF"
)
