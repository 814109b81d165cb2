package attendance

import (
	"context"
	"time"
)

// Store is the persistence boundary for sessions and records. The roster
// reads live here too so the end-of-session back-fill can run in one
// transaction against the same database.
//
// Uniqueness of (session, student) is the store's job, not a check-then-act
// in the service: concurrent marks for the same student must collapse to a
// single row, with the loser receiving the existing record.
type Store interface {
	ClassInfo(ctx context.Context, classID int64) (*ClassInfo, error)
	IsEnrolled(ctx context.Context, classID, studentID int64) (bool, error)

	CreateSession(ctx context.Context, s *Session) error
	SessionByToken(ctx context.Context, token string) (*Session, error)
	ActiveSessions(ctx context.Context, teacherID int64, now time.Time) ([]Session, error)

	// InsertRecord writes one row unless (session, student) already exists,
	// in which case it returns the existing row with created=false.
	InsertRecord(ctx context.Context, sessionID, studentID int64, status string, markedAt time.Time) (rec *Record, created bool, err error)
	// UpsertRecordStatus creates the row or overwrites only its status,
	// leaving marked_at at first-write time.
	UpsertRecordStatus(ctx context.Context, sessionID, studentID int64, status string, markedAt time.Time) (*Record, error)
	RecordWithTeacher(ctx context.Context, recordID int64) (rec *Record, teacherID int64, err error)
	SetRecordStatus(ctx context.Context, recordID int64, status string) (*Record, error)

	// EndSession atomically back-fills absences for enrolled-but-unmarked
	// students, flips the session to completed and stamps the actual close
	// time. It re-checks the stored status under a row lock and fails with
	// an invalid-state error if the session is no longer active.
	EndSession(ctx context.Context, sessionID int64, now time.Time) (*EndResult, error)

	SessionRecords(ctx context.Context, sessionID int64) ([]Record, error)
	SessionRoll(ctx context.Context, sessionID, classID int64) ([]RollEntry, error)
	StudentHistory(ctx context.Context, studentID int64) ([]HistoryRecord, error)
	TeacherHistory(ctx context.Context, teacherID int64, f HistoryFilter) ([]HistoryRecord, error)
}
