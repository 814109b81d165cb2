package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/apperr"
)

// Durations accepted for a session, in minutes.
const (
	MinDuration = 1
	MaxDuration = 300
)

// Service coordinates the session lifecycle: creation, self-marking,
// reconciliation at end, overrides and history reads.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// ownedSession resolves a session by token and verifies the teacher owns it.
// Sessions owned by other teachers are reported as not found.
func (s *Service) ownedSession(ctx context.Context, teacherID int64, token string) (*Session, error) {
	sess, err := s.store.SessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.TeacherID != teacherID {
		return nil, apperr.NotFound("session not found")
	}
	return sess, nil
}

// Create opens a new attendance window for a class the teacher owns. The
// payload snapshot is frozen here; renaming the class later does not touch it.
func (s *Service) Create(ctx context.Context, teacherID, classID int64, durationMinutes int) (*Session, error) {
	if classID == 0 {
		return nil, apperr.Validation("class_id is required")
	}
	if durationMinutes < MinDuration || durationMinutes > MaxDuration {
		return nil, apperr.Validation("duration_minutes must be between 1 and 300")
	}
	info, err := s.store.ClassInfo(ctx, classID)
	if err != nil {
		return nil, err
	}
	if info == nil || info.TeacherID != teacherID {
		return nil, apperr.NotFound("class not found")
	}

	now := s.now().UTC()
	end := now.Add(time.Duration(durationMinutes) * time.Minute)
	token := uuid.NewString()

	sess := &Session{
		Token:     token,
		ClassID:   classID,
		TeacherID: teacherID,
		StartTime: now,
		Duration:  durationMinutes,
		EndTime:   end,
		Status:    SessionActive,
		Payload: Payload{
			SessionID: token,
			ClassID:   info.ID,
			ClassCode: info.Code,
			ClassName: info.Name,
			Semester:  info.Semester,
			Teacher:   info.TeacherName,
			StartTime: now.Format(time.RFC3339),
			EndTime:   end.Format(time.RFC3339),
			Duration:  durationMinutes,
		},
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Active lists the teacher's sessions whose stored status is active and whose
// end_time has not passed. This is a read filter only: a session missing from
// this list can still be ended, and marking it is gated by IsActive.
func (s *Service) Active(ctx context.Context, teacherID int64) ([]Session, error) {
	return s.store.ActiveSessions(ctx, teacherID, s.now())
}

// Mark records a student as present for an open session. Re-marking is a
// no-op returning the existing record with alreadyMarked set.
func (s *Service) Mark(ctx context.Context, studentID int64, token string) (rec *Record, alreadyMarked bool, err error) {
	sess, err := s.store.SessionByToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	if sess == nil {
		return nil, false, apperr.NotFound("session not found")
	}
	now := s.now()
	if sess.Status != SessionActive {
		return nil, false, apperr.InvalidState("session ended")
	}
	if !now.Before(sess.EndTime) {
		return nil, false, apperr.Expired("session expired")
	}
	enrolled, err := s.store.IsEnrolled(ctx, sess.ClassID, studentID)
	if err != nil {
		return nil, false, err
	}
	if !enrolled {
		return nil, false, apperr.Forbidden("not enrolled in this class")
	}
	rec, created, err := s.store.InsertRecord(ctx, sess.ID, studentID, StatusPresent, now)
	if err != nil {
		return nil, false, err
	}
	return rec, !created, nil
}

// End closes a session exactly once: absences are back-filled for every
// enrolled student without a record, the status flips to completed and
// end_time is overwritten with the actual close time. A session past its
// scheduled end but never ended can still be ended here; an already-completed
// one cannot.
func (s *Service) End(ctx context.Context, teacherID int64, token string) (*Session, Stats, error) {
	sess, err := s.ownedSession(ctx, teacherID, token)
	if err != nil {
		return nil, Stats{}, err
	}
	if sess.Status != SessionActive {
		return nil, Stats{}, apperr.InvalidState("session already ended")
	}
	res, err := s.store.EndSession(ctx, sess.ID, s.now().UTC())
	if err != nil {
		return nil, Stats{}, err
	}
	return res.Session, ComputeStats(res.Total, res.Present), nil
}

// ManualMark lets the teacher set a student's status regardless of session
// state, so records can be corrected after completion. Creates the row when
// missing, otherwise overwrites status only; marked_at keeps first-write time.
func (s *Service) ManualMark(ctx context.Context, teacherID int64, token string, studentID int64, status string) (*Record, error) {
	if !ValidStatus(status) {
		return nil, apperr.Validation("status must be present or absent")
	}
	sess, err := s.ownedSession(ctx, teacherID, token)
	if err != nil {
		return nil, err
	}
	enrolled, err := s.store.IsEnrolled(ctx, sess.ClassID, studentID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, apperr.Forbidden("student not enrolled in this class")
	}
	return s.store.UpsertRecordStatus(ctx, sess.ID, studentID, status, s.now())
}

// UpdateStatus is the record-id flavor of ManualMark; ownership is checked
// through the record's session.
func (s *Service) UpdateStatus(ctx context.Context, teacherID, recordID int64, status string) (*Record, error) {
	if !ValidStatus(status) {
		return nil, apperr.Validation("status must be present or absent")
	}
	rec, ownerID, err := s.store.RecordWithTeacher(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec == nil || ownerID != teacherID {
		return nil, apperr.NotFound("record not found")
	}
	return s.store.SetRecordStatus(ctx, recordID, status)
}

// Detail returns a session with its ledger rows and present/total counts.
// Total counts current enrollment; enrolled students without a row count as
// absent in the stats but no record is written.
func (s *Service) Detail(ctx context.Context, teacherID int64, token string) (*Session, []Record, Stats, error) {
	sess, err := s.ownedSession(ctx, teacherID, token)
	if err != nil {
		return nil, nil, Stats{}, err
	}
	records, err := s.store.SessionRecords(ctx, sess.ID)
	if err != nil {
		return nil, nil, Stats{}, err
	}
	roll, err := s.store.SessionRoll(ctx, sess.ID, sess.ClassID)
	if err != nil {
		return nil, nil, Stats{}, err
	}
	present := 0
	for _, e := range roll {
		if e.HasRecord && e.Status == StatusPresent {
			present++
		}
	}
	return sess, records, ComputeStats(len(roll), present), nil
}

// Roll returns the per-student attendance view for a session: every enrolled
// student, with has_record false for those the ledger never saw.
func (s *Service) Roll(ctx context.Context, teacherID int64, token string) ([]RollEntry, error) {
	sess, err := s.ownedSession(ctx, teacherID, token)
	if err != nil {
		return nil, err
	}
	return s.store.SessionRoll(ctx, sess.ID, sess.ClassID)
}

// StudentHistory lists a student's records across all sessions, newest first.
func (s *Service) StudentHistory(ctx context.Context, studentID int64) ([]HistoryRecord, error) {
	return s.store.StudentHistory(ctx, studentID)
}

// TeacherHistory lists records across the teacher's sessions with optional
// class/session/date filters, plus the aggregate statistics over the result.
func (s *Service) TeacherHistory(ctx context.Context, teacherID int64, f HistoryFilter) ([]HistoryRecord, Stats, error) {
	records, err := s.store.TeacherHistory(ctx, teacherID, f)
	if err != nil {
		return nil, Stats{}, err
	}
	present := 0
	for _, r := range records {
		if r.Status == StatusPresent {
			present++
		}
	}
	return records, ComputeStats(len(records), present), nil
}
