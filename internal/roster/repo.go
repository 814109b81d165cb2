package roster

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var errDuplicate = errors.New("duplicate row")

// Repository persists classes and enrollments in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const classColumns = `
	c.id, c.class_code, c.class_name, c.semester, c.teacher_id, u.username,
	(SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id),
	c.created_at, c.updated_at
`

func scanClass(row interface{ Scan(...any) error }) (*Class, error) {
	var cl Class
	err := row.Scan(&cl.ID, &cl.Code, &cl.Name, &cl.Semester, &cl.TeacherID,
		&cl.TeacherName, &cl.StudentCount, &cl.CreatedAt, &cl.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cl, nil
}

// InsertClass writes a new class.
func (r *Repository) InsertClass(ctx context.Context, code, name, semester string, teacherID int64) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO classes (class_code, class_name, semester, teacher_id)
			VALUES ($1, $2, $3, $4)
			RETURNING *
		)
		SELECT `+classColumns+`
		FROM inserted c JOIN users u ON u.id = c.teacher_id
	`, code, name, semester, teacherID)
	cl, err := scanClass(row)
	if err != nil {
		if uniqueViolation(err) {
			return nil, errDuplicate
		}
		return nil, err
	}
	return cl, nil
}

// ClassByID returns a class by id, or nil when absent.
func (r *Repository) ClassByID(ctx context.Context, id int64) (*Class, error) {
	return scanClass(r.db.QueryRowContext(ctx, `
		SELECT `+classColumns+`
		FROM classes c JOIN users u ON u.id = c.teacher_id
		WHERE c.id = $1
	`, id))
}

// ClassesByTeacher lists a teacher's classes ordered by code.
func (r *Repository) ClassesByTeacher(ctx context.Context, teacherID int64) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+classColumns+`
		FROM classes c JOIN users u ON u.id = c.teacher_id
		WHERE c.teacher_id = $1
		ORDER BY c.class_code
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Class
	for rows.Next() {
		cl, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *cl)
	}
	return res, rows.Err()
}

// UpdateClass rewrites mutable class fields.
func (r *Repository) UpdateClass(ctx context.Context, id int64, code, name, semester string) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE classes
			SET class_code = $2, class_name = $3, semester = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING *
		)
		SELECT `+classColumns+`
		FROM updated c JOIN users u ON u.id = c.teacher_id
	`, id, code, name, semester)
	cl, err := scanClass(row)
	if err != nil {
		if uniqueViolation(err) {
			return nil, errDuplicate
		}
		return nil, err
	}
	return cl, nil
}

// DeleteClass removes a class; sessions and records cascade.
func (r *Repository) DeleteClass(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	return err
}

// InsertEnrollment adds a student to a class.
func (r *Repository) InsertEnrollment(ctx context.Context, classID, studentID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (class_id, student_id) VALUES ($1, $2)
	`, classID, studentID)
	if uniqueViolation(err) {
		return errDuplicate
	}
	return err
}

// DeleteEnrollment removes a student from a class; past records are untouched.
func (r *Repository) DeleteEnrollment(ctx context.Context, classID, studentID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM enrollments WHERE class_id = $1 AND student_id = $2
	`, classID, studentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Members lists enrolled students for a class.
func (r *Repository) Members(ctx context.Context, classID int64) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.student_id, u.username, u.email, e.enrolled_at
		FROM enrollments e JOIN users u ON u.id = e.student_id
		WHERE e.class_id = $1
		ORDER BY u.username
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.StudentID, &m.Username, &m.Email, &m.EnrolledAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// ClassesByStudent lists the classes a student is enrolled in.
func (r *Repository) ClassesByStudent(ctx context.Context, studentID int64) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+classColumns+`
		FROM enrollments e
		JOIN classes c ON c.id = e.class_id
		JOIN users u ON u.id = c.teacher_id
		WHERE e.student_id = $1
		ORDER BY c.class_code
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Class
	for rows.Next() {
		cl, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *cl)
	}
	return res, rows.Err()
}
