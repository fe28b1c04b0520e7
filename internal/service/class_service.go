package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/classtrack/classtrack-api/internal/models"
	appErrors "github.com/classtrack/classtrack-api/pkg/errors"
)

const classCodeLength = 6
const classCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type classRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	AddStudent(ctx context.Context, classID, studentID string) error
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Class, error)
	Roster(ctx context.Context, classID string) ([]models.UserInfo, error)
}

type teacherReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ClassService manages class creation, join-by-code, and role-scoped listings.
type ClassService struct {
	classes   classRepository
	users     teacherReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs the class service.
func NewClassService(classes classRepository, users teacherReader, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{classes: classes, users: users, validator: validate, logger: logger}
}

// CreateClassRequest describes the create-class payload.
type CreateClassRequest struct {
	Name    string `json:"name" validate:"required"`
	Subject string `json:"subject" validate:"required"`
}

// JoinClassRequest describes the join-class payload.
type JoinClassRequest struct {
	ClassCode string `json:"classCode" validate:"required"`
}

// Create creates a class owned by the calling teacher with a unique join code.
func (s *ClassService) Create(ctx context.Context, principal *models.JWTClaims, req CreateClassRequest) (*models.Class, error) {
	if principal == nil || principal.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can create classes")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	code, err := s.uniqueClassCode(ctx)
	if err != nil {
		return nil, err
	}

	class := &models.Class{
		Name:      req.Name,
		Subject:   req.Subject,
		Code:      code,
		TeacherID: principal.UserID,
	}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	s.logger.Info("class created", zap.String("class_id", class.ID), zap.String("teacher_id", principal.UserID))
	return class, nil
}

// Join enrolls the calling student into the class matching the join code.
func (s *ClassService) Join(ctx context.Context, principal *models.JWTClaims, req JoinClassRequest) (*models.Class, error) {
	if principal == nil || principal.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can join classes")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	class, err := s.classes.FindByCode(ctx, req.ClassCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invalid class code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up class")
	}

	if class.TeacherID == principal.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher cannot join their own class")
	}

	roster, err := s.classes.Roster(ctx, class.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	for _, student := range roster {
		if student.ID == principal.UserID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "you already joined this class")
		}
	}

	if err := s.classes.AddStudent(ctx, class.ID, principal.UserID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join class")
	}
	return class, nil
}

// MyClasses lists classes scoped to the caller's role: teachers see owned
// classes with rosters, students see enrolled classes with teacher info.
func (s *ClassService) MyClasses(ctx context.Context, principal *models.JWTClaims) ([]models.ClassDetail, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}

	switch principal.Role {
	case models.RoleTeacher:
		classes, err := s.classes.ListByTeacher(ctx, principal.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
		}
		details := make([]models.ClassDetail, len(classes))
		self := models.UserInfo{ID: principal.UserID, FullName: principal.FullName, Email: principal.Email, Role: principal.Role}
		for i, class := range classes {
			roster, err := s.classes.Roster(ctx, class.ID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
			}
			details[i] = models.ClassDetail{Class: class, Teacher: self, Students: roster}
		}
		return details, nil

	case models.RoleStudent:
		classes, err := s.classes.ListByStudent(ctx, principal.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
		}
		details := make([]models.ClassDetail, len(classes))
		for i, class := range classes {
			detail := models.ClassDetail{Class: class}
			teacher, err := s.users.FindByID(ctx, class.TeacherID)
			if err == nil {
				detail.Teacher = models.UserInfo{ID: teacher.ID, FullName: teacher.FullName, Email: teacher.Email, Role: teacher.Role}
			} else if !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teacher")
			}
			details[i] = detail
		}
		return details, nil

	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "unsupported role")
	}
}

func (s *ClassService) uniqueClassCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := generateClassCode()
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate class code")
		}
		_, err = s.classes.FindByCode(ctx, code)
		if errors.Is(err, sql.ErrNoRows) {
			return code, nil
		}
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class code")
		}
	}
	return "", appErrors.Clone(appErrors.ErrInternal, "could not allocate a unique class code")
}

func generateClassCode() (string, error) {
	buf := make([]byte, classCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	code := make([]byte, classCodeLength)
	for i, b := range buf {
		code[i] = classCodeAlphabet[int(b)%len(classCodeAlphabet)]
	}
	return string(code), nil
}
