package roster

import (
	"context"
	"errors"

	"rollcall/internal/apperr"
)

// Service handles class and enrollment management for teachers.
type Service struct {
	repo *Repository
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// ownedClass loads a class and verifies the caller owns it. Classes owned by
// other teachers are reported as not found, not forbidden.
func (s *Service) ownedClass(ctx context.Context, classID, teacherID int64) (*Class, error) {
	cl, err := s.repo.ClassByID(ctx, classID)
	if err != nil {
		return nil, err
	}
	if cl == nil || cl.TeacherID != teacherID {
		return nil, apperr.NotFound("class not found")
	}
	return cl, nil
}

// Create makes a new class owned by the teacher.
func (s *Service) Create(ctx context.Context, teacherID int64, code, name, semester string) (*Class, error) {
	if code == "" || name == "" || semester == "" {
		return nil, apperr.Validation("class_code, class_name and semester are required")
	}
	cl, err := s.repo.InsertClass(ctx, code, name, semester, teacherID)
	if err != nil {
		if errors.Is(err, errDuplicate) {
			return nil, apperr.Conflict("class code already in use")
		}
		return nil, err
	}
	return cl, nil
}

// List returns the teacher's classes.
func (s *Service) List(ctx context.Context, teacherID int64) ([]Class, error) {
	return s.repo.ClassesByTeacher(ctx, teacherID)
}

// Get returns one class owned by the teacher.
func (s *Service) Get(ctx context.Context, teacherID, classID int64) (*Class, error) {
	return s.ownedClass(ctx, classID, teacherID)
}

// Update rewrites a class the teacher owns.
func (s *Service) Update(ctx context.Context, teacherID, classID int64, code, name, semester string) (*Class, error) {
	if code == "" || name == "" || semester == "" {
		return nil, apperr.Validation("class_code, class_name and semester are required")
	}
	if _, err := s.ownedClass(ctx, classID, teacherID); err != nil {
		return nil, err
	}
	cl, err := s.repo.UpdateClass(ctx, classID, code, name, semester)
	if err != nil {
		if errors.Is(err, errDuplicate) {
			return nil, apperr.Conflict("class code already in use")
		}
		return nil, err
	}
	return cl, nil
}

// Delete removes a class and everything hanging off it.
func (s *Service) Delete(ctx context.Context, teacherID, classID int64) error {
	if _, err := s.ownedClass(ctx, classID, teacherID); err != nil {
		return err
	}
	return s.repo.DeleteClass(ctx, classID)
}

// Members lists students enrolled in a class the teacher owns.
func (s *Service) Members(ctx context.Context, teacherID, classID int64) ([]Member, error) {
	if _, err := s.ownedClass(ctx, classID, teacherID); err != nil {
		return nil, err
	}
	return s.repo.Members(ctx, classID)
}

// AddStudent enrolls a student in a class the teacher owns.
func (s *Service) AddStudent(ctx context.Context, teacherID, classID, studentID int64) error {
	if _, err := s.ownedClass(ctx, classID, teacherID); err != nil {
		return err
	}
	if err := s.repo.InsertEnrollment(ctx, classID, studentID); err != nil {
		if errors.Is(err, errDuplicate) {
			return apperr.Conflict("student already enrolled")
		}
		return err
	}
	return nil
}

// RemoveStudent permanently drops an enrollment. Past attendance records for
// the student are kept.
func (s *Service) RemoveStudent(ctx context.Context, teacherID, classID, studentID int64) error {
	if _, err := s.ownedClass(ctx, classID, teacherID); err != nil {
		return err
	}
	removed, err := s.repo.DeleteEnrollment(ctx, classID, studentID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.NotFound("student not enrolled in this class")
	}
	return nil
}

// StudentClasses lists the classes a student is enrolled in.
func (s *Service) StudentClasses(ctx context.Context, studentID int64) ([]Class, error) {
	return s.repo.ClassesByStudent(ctx, studentID)
}
