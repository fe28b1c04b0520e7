package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classtrack/classtrack-api/internal/models"
)

// ClassRepository manages persistence for classes and their rosters.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class row. sql.ErrNoRows propagates to the caller.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	var class models.Class
	query := `SELECT id, name, subject, class_code, teacher_id, created_at, updated_at FROM classes WHERE id = $1`
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindByCode returns the class with the given join code.
func (r *ClassRepository) FindByCode(ctx context.Context, code string) (*models.Class, error) {
	var class models.Class
	query := `SELECT id, name, subject, class_code, teacher_id, created_at, updated_at FROM classes WHERE class_code = $1`
	if err := r.db.GetContext(ctx, &class, query, code); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindDetail resolves a class together with its teacher and roster.
func (r *ClassRepository) FindDetail(ctx context.Context, id string) (*models.ClassDetail, error) {
	class, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &models.ClassDetail{Class: *class}

	teacherQuery := `SELECT id, full_name, email, role FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &detail.Teacher, teacherQuery, class.TeacherID); err != nil {
		return nil, fmt.Errorf("resolve class teacher: %w", err)
	}

	students, err := r.Roster(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Students = students

	return detail, nil
}

// Roster returns the enrolled students of a class sorted by name.
func (r *ClassRepository) Roster(ctx context.Context, classID string) ([]models.UserInfo, error) {
	students := []models.UserInfo{}
	query := `SELECT u.id, u.full_name, u.email, u.role
FROM class_students cs
JOIN users u ON u.id = cs.student_id
WHERE cs.class_id = $1
ORDER BY u.full_name ASC`
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("load class roster: %w", err)
	}
	return students, nil
}

// Create persists a new class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	now := time.Now().UTC()
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	class.CreatedAt = now
	class.UpdatedAt = now

	query := `INSERT INTO classes (id, name, subject, class_code, teacher_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query, class.ID, class.Name, class.Subject, class.Code, class.TeacherID, class.CreatedAt, class.UpdatedAt); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// AddStudent enrolls a student into a class.
func (r *ClassRepository) AddStudent(ctx context.Context, classID, studentID string) error {
	query := `INSERT INTO class_students (class_id, student_id, joined_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, classID, studentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("enroll student: %w", err)
	}
	return nil
}

// ListByTeacher returns classes owned by a teacher, newest first.
func (r *ClassRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.Class, error) {
	classes := []models.Class{}
	query := `SELECT id, name, subject, class_code, teacher_id, created_at, updated_at
FROM classes WHERE teacher_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &classes, query, teacherID); err != nil {
		return nil, fmt.Errorf("list classes by teacher: %w", err)
	}
	return classes, nil
}

// ListByStudent returns classes the student is enrolled in, newest first.
func (r *ClassRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Class, error) {
	classes := []models.Class{}
	query := `SELECT c.id, c.name, c.subject, c.class_code, c.teacher_id, c.created_at, c.updated_at
FROM classes c
JOIN class_students cs ON cs.class_id = c.id
WHERE cs.student_id = $1
ORDER BY c.created_at DESC`
	if err := r.db.SelectContext(ctx, &classes, query, studentID); err != nil {
		return nil, fmt.Errorf("list classes by student: %w", err)
	}
	return classes, nil
}
