package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusAbsent
}

// AttendanceRecord is the atomic attendance fact: one row per
// (student, class, calendar day).
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	ClassID   string           `db:"class_id" json:"class_id"`
	Date      time.Time        `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecordDetail extends a record with resolved display fields.
type AttendanceRecordDetail struct {
	AttendanceRecord
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
	ClassName    string `db:"class_name" json:"class_name"`
	ClassSubject string `db:"class_subject" json:"class_subject"`
}

// AttendanceEntry is a single write in a bulk upsert.
type AttendanceEntry struct {
	StudentID string
	ClassID   string
	Date      time.Time
	Status    AttendanceStatus
}

// AttendanceFilter scopes record queries. Zero-valued fields impose no
// constraint. ExactDate matches the full calendar day [date, date+1d).
type AttendanceFilter struct {
	ClassID   string
	StudentID string
	DateFrom  *time.Time
	DateTo    *time.Time
	ExactDate *time.Time
	Offset    int
	Limit     int
}

// UpsertSummary reports how a batch write was applied.
type UpsertSummary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// DateRange describes the inclusive window of an aggregation.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// OverallStats carries raw counters for a rollup.
type OverallStats struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Total   int `json:"total"`
}

// DailyBucket aggregates one calendar day of a class.
type DailyBucket struct {
	Date         string `json:"date"`
	PresentCount int    `json:"presentCount"`
	TotalCount   int    `json:"totalCount"`
}

// StudentBucket aggregates one student's attendance within a window.
type StudentBucket struct {
	StudentID            string `json:"studentId"`
	Name                 string `json:"name"`
	Email                string `json:"email"`
	PresentDays          int    `json:"presentDays"`
	TotalDays            int    `json:"totalDays"`
	AttendancePercentage int    `json:"attendancePercentage"`
}

// ClassStatistics is the per-class rollup over a window.
type ClassStatistics struct {
	TotalStudents        int             `json:"totalStudents"`
	AttendancePercentage int             `json:"attendancePercentage"`
	OverallStats         OverallStats    `json:"overallStats"`
	DailyStats           []DailyBucket   `json:"dailyStats"`
	StudentAttendance    []StudentBucket `json:"studentAttendance"`
	DateRange            DateRange       `json:"dateRange"`
}

// StudentStatistics is the per-student rollup over a window.
type StudentStatistics struct {
	TotalRecords         int       `json:"totalRecords"`
	PresentCount         int       `json:"presentCount"`
	AbsentCount          int       `json:"absentCount"`
	AttendancePercentage int       `json:"attendancePercentage"`
	Class                *Class    `json:"class,omitempty"`
	Student              *UserInfo `json:"student,omitempty"`
}

// MarkSummary is the same-day summary returned after a mark-attendance call.
type MarkSummary struct {
	Date          string `json:"date"`
	TotalStudents int    `json:"totalStudents"`
	Present       int    `json:"present"`
	Absent        int    `json:"absent"`
}
