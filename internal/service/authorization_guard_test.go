package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/classtrack/classtrack-api/internal/models"
)

func guardClass() *models.ClassDetail {
	return &models.ClassDetail{
		Class: models.Class{ID: "c1", TeacherID: "t1"},
		Students: []models.UserInfo{
			{ID: "s1", FullName: "Alice"},
			{ID: "s2", FullName: "Bob"},
		},
	}
}

func claims(userID string, role models.UserRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: role}
}

func TestCanReadClassAttendance(t *testing.T) {
	guard := NewAuthorizationGuard()
	class := guardClass()

	assert.True(t, guard.CanReadClassAttendance(claims("t1", models.RoleTeacher), class))
	assert.False(t, guard.CanReadClassAttendance(claims("t2", models.RoleTeacher), class))
	assert.True(t, guard.CanReadClassAttendance(claims("s1", models.RoleStudent), class))
	assert.False(t, guard.CanReadClassAttendance(claims("s9", models.RoleStudent), class))
	assert.False(t, guard.CanReadClassAttendance(nil, class))
	assert.False(t, guard.CanReadClassAttendance(claims("t1", models.RoleTeacher), nil))
}

func TestCanWriteClassAttendance(t *testing.T) {
	guard := NewAuthorizationGuard()
	class := guardClass()

	assert.True(t, guard.CanWriteClassAttendance(claims("t1", models.RoleTeacher), class))
	assert.False(t, guard.CanWriteClassAttendance(claims("t2", models.RoleTeacher), class))
	// Enrolled students can read but never write.
	assert.False(t, guard.CanWriteClassAttendance(claims("s1", models.RoleStudent), class))
	assert.False(t, guard.CanWriteClassAttendance(nil, class))
}

func TestCanReadStudentHistory(t *testing.T) {
	guard := NewAuthorizationGuard()
	class := guardClass()

	assert.True(t, guard.CanReadStudentHistory(claims("t1", models.RoleTeacher), class, "s1"))
	assert.False(t, guard.CanReadStudentHistory(claims("t2", models.RoleTeacher), class, "s1"))
	assert.True(t, guard.CanReadStudentHistory(claims("s1", models.RoleStudent), class, "s1"))
	// A classmate may not read another student's history.
	assert.False(t, guard.CanReadStudentHistory(claims("s2", models.RoleStudent), class, "s1"))
	assert.False(t, guard.CanReadStudentHistory(nil, class, "s1"))
}
