package models

// SubjectTeacher is one row of the approval notice's subject table.
type SubjectTeacher struct {
	Subject    string `json:"subject"`
	Instructor string `json:"instructor"`
}

// ApprovalNotice carries the data an approval template needs. Exactly one of
// Adviser (grades 1-3) or Subjects (grades 4-6) is populated.
type ApprovalNotice struct {
	EnrollmentID string           `json:"enrollment_id"`
	ToAddress    string           `json:"to_address"`
	ToName       string           `json:"to_name"`
	StudentName  string           `json:"student_name"`
	Grade        int              `json:"grade"`
	Section      int              `json:"section"`
	Room         string           `json:"room"`
	Shift        string           `json:"shift"`
	TimeWindow   string           `json:"time_window"`
	Adviser      string           `json:"adviser,omitempty"`
	Subjects     []SubjectTeacher `json:"subjects,omitempty"`
}

// RejectionNotice carries the data a rejection template needs.
type RejectionNotice struct {
	EnrollmentID string `json:"enrollment_id"`
	ToAddress    string `json:"to_address"`
	ToName       string `json:"to_name"`
	StudentName  string `json:"student_name"`
}
