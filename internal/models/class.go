package models

import "time"

// Class represents a class row owned by a teacher.
type Class struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Subject   string    `db:"subject" json:"subject"`
	Code      string    `db:"class_code" json:"class_code"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends a class with its resolved teacher and roster.
type ClassDetail struct {
	Class
	Teacher  UserInfo   `json:"teacher"`
	Students []UserInfo `json:"students"`
}

// OwnedBy reports whether the given user is the class's teacher.
func (c *ClassDetail) OwnedBy(userID string) bool {
	return c.TeacherID == userID
}

// HasStudent reports whether the given student is on the roster.
func (c *ClassDetail) HasStudent(studentID string) bool {
	for _, s := range c.Students {
		if s.ID == studentID {
			return true
		}
	}
	return false
}
