package attendance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rollcall/internal/apperr"
	"rollcall/internal/store"
)

// PostgresStore persists sessions and records in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// ClassInfo returns the class snapshot source, or nil when absent.
func (p *PostgresStore) ClassInfo(ctx context.Context, classID int64) (*ClassInfo, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT c.id, c.class_code, c.class_name, c.semester, c.teacher_id, u.username
		FROM classes c JOIN users u ON u.id = c.teacher_id
		WHERE c.id = $1
	`, classID)
	var info ClassInfo
	if err := row.Scan(&info.ID, &info.Code, &info.Name, &info.Semester, &info.TeacherID, &info.TeacherName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &info, nil
}

// IsEnrolled reports whether the student has an enrollment row for the class.
func (p *PostgresStore) IsEnrolled(ctx context.Context, classID, studentID int64) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM enrollments WHERE class_id = $1 AND student_id = $2)
	`, classID, studentID).Scan(&exists)
	return exists, err
}

// CreateSession writes a new session with its frozen payload.
func (p *PostgresStore) CreateSession(ctx context.Context, s *Session) error {
	payload, err := json.Marshal(s.Payload)
	if err != nil {
		return err
	}
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions
			(session_id, class_id, teacher_id, start_time, duration_minutes, end_time, qr_payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, s.Token, s.ClassID, s.TeacherID, s.StartTime, s.Duration, s.EndTime, payload, s.Status)
	return row.Scan(&s.ID, &s.CreatedAt)
}

const sessionColumns = `
	id, session_id, class_id, teacher_id, start_time, duration_minutes,
	end_time, qr_payload, status, created_at
`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	var payload []byte
	err := row.Scan(&s.ID, &s.Token, &s.ClassID, &s.TeacherID, &s.StartTime,
		&s.Duration, &s.EndTime, &payload, &s.Status, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(payload, &s.Payload); err != nil {
		return nil, fmt.Errorf("decode qr payload: %w", err)
	}
	return &s, nil
}

// SessionByToken resolves a session globally by its opaque token.
func (p *PostgresStore) SessionByToken(ctx context.Context, token string) (*Session, error) {
	return scanSession(p.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM attendance_sessions WHERE session_id = $1
	`, token))
}

// ActiveSessions lists a teacher's sessions that are active by stored status
// and still inside their window.
func (p *PostgresStore) ActiveSessions(ctx context.Context, teacherID int64, now time.Time) ([]Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions
		WHERE teacher_id = $1 AND status = $2 AND end_time > $3
		ORDER BY start_time DESC
	`, teacherID, SessionActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}

// InsertRecord writes one present/absent row; on conflict it returns the
// existing row so a double-mark stays a no-op even under racing requests.
func (p *PostgresStore) InsertRecord(ctx context.Context, sessionID, studentID int64, status string, markedAt time.Time) (*Record, bool, error) {
	rec := Record{SessionID: sessionID, StudentID: studentID, Status: status, MarkedAt: markedAt}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (session_id, student_id, status, marked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, student_id) DO NOTHING
		RETURNING id
	`, sessionID, studentID, status, markedAt).Scan(&rec.ID)
	if err == nil {
		return &rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}
	existing, err := p.recordBySessionStudent(ctx, sessionID, studentID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, apperr.Conflict("attendance record vanished during insert")
	}
	return existing, false, nil
}

func (p *PostgresStore) recordBySessionStudent(ctx context.Context, sessionID, studentID int64) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, session_id, student_id, status, marked_at
		FROM attendance_records
		WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.Status, &rec.MarkedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// UpsertRecordStatus creates the row or overwrites only its status. The DO
// UPDATE deliberately leaves marked_at alone: it records first-write time.
func (p *PostgresStore) UpsertRecordStatus(ctx context.Context, sessionID, studentID int64, status string, markedAt time.Time) (*Record, error) {
	rec := Record{SessionID: sessionID, StudentID: studentID}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (session_id, student_id, status, marked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, student_id) DO UPDATE SET status = EXCLUDED.status
		RETURNING id, status, marked_at
	`, sessionID, studentID, status, markedAt).Scan(&rec.ID, &rec.Status, &rec.MarkedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordWithTeacher loads a record plus the teacher owning its session.
func (p *PostgresStore) RecordWithTeacher(ctx context.Context, recordID int64) (*Record, int64, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT r.id, r.session_id, r.student_id, r.status, r.marked_at, s.teacher_id
		FROM attendance_records r
		JOIN attendance_sessions s ON s.id = r.session_id
		WHERE r.id = $1
	`, recordID)
	var rec Record
	var teacherID int64
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.Status, &rec.MarkedAt, &teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	return &rec, teacherID, nil
}

// SetRecordStatus overwrites a record's status; marked_at stays untouched.
func (p *PostgresStore) SetRecordStatus(ctx context.Context, recordID int64, status string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE attendance_records SET status = $2 WHERE id = $1
		RETURNING id, session_id, student_id, status, marked_at
	`, recordID, status)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.Status, &rec.MarkedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// EndSession runs the reconciliation as one transaction: roster snapshot,
// ledger snapshot, absent back-fill, status flip. Nothing outside the
// transaction can observe the session completed with a partial ledger.
func (p *PostgresStore) EndSession(ctx context.Context, sessionID int64, now time.Time) (*EndResult, error) {
	var res EndResult
	err := store.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		var classID int64
		var status string
		err := tx.QueryRowContext(ctx, `
			SELECT class_id, status FROM attendance_sessions WHERE id = $1 FOR UPDATE
		`, sessionID).Scan(&classID, &status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("session not found")
			}
			return err
		}
		if status != SessionActive {
			return apperr.InvalidState("session already ended")
		}

		enrolled, err := idSet(tx.QueryContext(ctx, `
			SELECT student_id FROM enrollments WHERE class_id = $1
		`, classID))
		if err != nil {
			return err
		}
		marked, err := idSet(tx.QueryContext(ctx, `
			SELECT student_id FROM attendance_records WHERE session_id = $1
		`, sessionID))
		if err != nil {
			return err
		}

		// Back-fill cannot violate the (session, student) uniqueness: the
		// NOT EXISTS mirrors the set difference computed for the stats.
		inserted, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_records (session_id, student_id, status, marked_at)
			SELECT $1, e.student_id, $2, $3
			FROM enrollments e
			WHERE e.class_id = $4
			  AND NOT EXISTS (
				SELECT 1 FROM attendance_records r
				WHERE r.session_id = $1 AND r.student_id = e.student_id
			  )
		`, sessionID, StatusAbsent, now, classID)
		if err != nil {
			return err
		}
		n, err := inserted.RowsAffected()
		if err != nil {
			return err
		}

		sess, err := scanSession(tx.QueryRowContext(ctx, `
			UPDATE attendance_sessions
			SET status = $2, end_time = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING `+sessionColumns+`
		`, sessionID, SessionCompleted, now))
		if err != nil {
			return err
		}

		present := 0
		for id := range marked {
			if _, ok := enrolled[id]; ok {
				present++
			}
		}
		res = EndResult{Session: sess, Total: len(enrolled), Present: present, BackFill: int(n)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func idSet(rows *sql.Rows, err error) (map[int64]struct{}, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		set[id] = struct{}{}
	}
	return set, rows.Err()
}

// SessionRecords lists the ledger rows for one session in mark order.
func (p *PostgresStore) SessionRecords(ctx context.Context, sessionID int64) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, session_id, student_id, status, marked_at
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY marked_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.Status, &rec.MarkedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// SessionRoll left-joins the enrollment set against the ledger. Enrolled
// students without a row come back absent with has_record false.
func (p *PostgresStore) SessionRoll(ctx context.Context, sessionID, classID int64) ([]RollEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT e.student_id, u.username, u.email,
		       COALESCE(r.status, $3), (r.id IS NOT NULL), r.marked_at
		FROM enrollments e
		JOIN users u ON u.id = e.student_id
		LEFT JOIN attendance_records r
		  ON r.session_id = $1 AND r.student_id = e.student_id
		WHERE e.class_id = $2
		ORDER BY u.username
	`, sessionID, classID, StatusAbsent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RollEntry
	for rows.Next() {
		var e RollEntry
		if err := rows.Scan(&e.StudentID, &e.Username, &e.Email, &e.Status, &e.HasRecord, &e.MarkedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

const historyColumns = `
	r.id, s.session_id, c.id, c.class_code, c.class_name,
	r.student_id, u.username, r.status, r.marked_at, s.start_time
`

func scanHistory(rows *sql.Rows) ([]HistoryRecord, error) {
	defer rows.Close()
	var res []HistoryRecord
	for rows.Next() {
		var h HistoryRecord
		err := rows.Scan(&h.RecordID, &h.SessionToken, &h.ClassID, &h.ClassCode,
			&h.ClassName, &h.StudentID, &h.StudentName, &h.Status, &h.MarkedAt, &h.SessionDate)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// StudentHistory lists a student's records across all sessions, newest first.
func (p *PostgresStore) StudentHistory(ctx context.Context, studentID int64) ([]HistoryRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+historyColumns+`
		FROM attendance_records r
		JOIN attendance_sessions s ON s.id = r.session_id
		JOIN classes c ON c.id = s.class_id
		JOIN users u ON u.id = r.student_id
		WHERE r.student_id = $1
		ORDER BY r.marked_at DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	return scanHistory(rows)
}

// TeacherHistory lists records across the teacher's sessions with optional
// class, session and date-range filters.
func (p *PostgresStore) TeacherHistory(ctx context.Context, teacherID int64, f HistoryFilter) ([]HistoryRecord, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM attendance_records r
		JOIN attendance_sessions s ON s.id = r.session_id
		JOIN classes c ON c.id = s.class_id
		JOIN users u ON u.id = r.student_id
		WHERE s.teacher_id = $1`
	args := []any{teacherID}
	if f.ClassID != 0 {
		args = append(args, f.ClassID)
		query += fmt.Sprintf(" AND c.id = $%d", len(args))
	}
	if f.SessionToken != "" {
		args = append(args, f.SessionToken)
		query += fmt.Sprintf(" AND s.session_id = $%d", len(args))
	}
	if !f.DateFrom.IsZero() {
		args = append(args, f.DateFrom)
		query += fmt.Sprintf(" AND s.start_time >= $%d", len(args))
	}
	if !f.DateTo.IsZero() {
		args = append(args, f.DateTo)
		query += fmt.Sprintf(" AND s.start_time < $%d", len(args))
	}
	query += " ORDER BY r.marked_at DESC"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanHistory(rows)
}
