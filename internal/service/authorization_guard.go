package service

import (
	"github.com/classtrack/classtrack-api/internal/models"
)

// AuthorizationGuard decides whether a principal may read or write attendance
// for a class. All predicates are pure; callers must resolve the class first
// (class-not-found fails before authorization is evaluated) and translate a
// false result into a forbidden error before touching the record store.
type AuthorizationGuard struct{}

// NewAuthorizationGuard constructs the guard.
func NewAuthorizationGuard() *AuthorizationGuard {
	return &AuthorizationGuard{}
}

// CanReadClassAttendance is true when the principal is the class's teacher,
// or a student enrolled in the class.
func (g *AuthorizationGuard) CanReadClassAttendance(principal *models.JWTClaims, class *models.ClassDetail) bool {
	if principal == nil || class == nil {
		return false
	}
	switch principal.Role {
	case models.RoleTeacher:
		return class.OwnedBy(principal.UserID)
	case models.RoleStudent:
		return class.HasStudent(principal.UserID)
	default:
		return false
	}
}

// CanWriteClassAttendance is true only for the class's teacher. Students may
// never write.
func (g *AuthorizationGuard) CanWriteClassAttendance(principal *models.JWTClaims, class *models.ClassDetail) bool {
	if principal == nil || class == nil {
		return false
	}
	return principal.Role == models.RoleTeacher && class.OwnedBy(principal.UserID)
}

// CanReadStudentHistory is true for the class's teacher, or for a student
// reading their own history. A student may never read another student's
// history, even within a class they share.
func (g *AuthorizationGuard) CanReadStudentHistory(principal *models.JWTClaims, class *models.ClassDetail, studentID string) bool {
	if principal == nil || class == nil {
		return false
	}
	switch principal.Role {
	case models.RoleTeacher:
		return class.OwnedBy(principal.UserID)
	case models.RoleStudent:
		return principal.UserID == studentID
	default:
		return false
	}
}
