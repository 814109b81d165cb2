package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"rollcall/internal/apperr"
)

// MemoryStore is a mutex-guarded in-memory Store for dev and tests. It
// mirrors the Postgres behavior, including the uniqueness guarantee on
// (session, student) and the atomic end-of-session back-fill.
type MemoryStore struct {
	mu sync.Mutex

	classes     map[int64]ClassInfo
	students    map[int64]memStudent
	enrollments map[int64]map[int64]struct{} // classID -> studentIDs

	sessions    map[int64]*Session
	byToken     map[string]int64
	records     map[int64]*Record
	byOwner     map[[2]int64]int64 // (sessionID, studentID) -> recordID
	nextSession int64
	nextRecord  int64
}

type memStudent struct {
	username string
	email    string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		classes:     make(map[int64]ClassInfo),
		students:    make(map[int64]memStudent),
		enrollments: make(map[int64]map[int64]struct{}),
		sessions:    make(map[int64]*Session),
		byToken:     make(map[string]int64),
		records:     make(map[int64]*Record),
		byOwner:     make(map[[2]int64]int64),
	}
}

var _ Store = (*MemoryStore)(nil)

// AddClass seeds a class.
func (m *MemoryStore) AddClass(info ClassInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[info.ID] = info
}

// AddStudent seeds a student account.
func (m *MemoryStore) AddStudent(id int64, username, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[id] = memStudent{username: username, email: email}
}

// Enroll seeds an enrollment.
func (m *MemoryStore) Enroll(classID, studentID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enrollments[classID] == nil {
		m.enrollments[classID] = make(map[int64]struct{})
	}
	m.enrollments[classID][studentID] = struct{}{}
}

// Unenroll removes an enrollment; existing records stay.
func (m *MemoryStore) Unenroll(classID, studentID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.enrollments[classID], studentID)
}

func (m *MemoryStore) ClassInfo(_ context.Context, classID int64) (*ClassInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.classes[classID]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (m *MemoryStore) IsEnrolled(_ context.Context, classID, studentID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.enrollments[classID][studentID]
	return ok, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSession++
	s.ID = m.nextSession
	s.CreatedAt = s.StartTime
	cp := *s
	m.sessions[s.ID] = &cp
	m.byToken[s.Token] = s.ID
	return nil
}

func (m *MemoryStore) SessionByToken(_ context.Context, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byToken[token]
	if !ok {
		return nil, nil
	}
	cp := *m.sessions[id]
	return &cp, nil
}

func (m *MemoryStore) ActiveSessions(_ context.Context, teacherID int64, now time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Session
	for _, s := range m.sessions {
		if s.TeacherID == teacherID && s.Status == SessionActive && now.Before(s.EndTime) {
			res = append(res, *s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StartTime.After(res[j].StartTime) })
	return res, nil
}

func (m *MemoryStore) InsertRecord(_ context.Context, sessionID, studentID int64, status string, markedAt time.Time) (*Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byOwner[[2]int64{sessionID, studentID}]; ok {
		cp := *m.records[id]
		return &cp, false, nil
	}
	rec := m.insertLocked(sessionID, studentID, status, markedAt)
	return rec, true, nil
}

func (m *MemoryStore) insertLocked(sessionID, studentID int64, status string, markedAt time.Time) *Record {
	m.nextRecord++
	rec := &Record{ID: m.nextRecord, SessionID: sessionID, StudentID: studentID, Status: status, MarkedAt: markedAt}
	m.records[rec.ID] = rec
	m.byOwner[[2]int64{sessionID, studentID}] = rec.ID
	cp := *rec
	return &cp
}

func (m *MemoryStore) UpsertRecordStatus(_ context.Context, sessionID, studentID int64, status string, markedAt time.Time) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byOwner[[2]int64{sessionID, studentID}]; ok {
		m.records[id].Status = status // marked_at keeps first-write time
		cp := *m.records[id]
		return &cp, nil
	}
	return m.insertLocked(sessionID, studentID, status, markedAt), nil
}

func (m *MemoryStore) RecordWithTeacher(_ context.Context, recordID int64) (*Record, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return nil, 0, nil
	}
	cp := *rec
	return &cp, m.sessions[rec.SessionID].TeacherID, nil
}

func (m *MemoryStore) SetRecordStatus(_ context.Context, recordID int64, status string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordID]
	if !ok {
		return nil, apperr.NotFound("record not found")
	}
	rec.Status = status
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) EndSession(_ context.Context, sessionID int64, now time.Time) (*EndResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, apperr.NotFound("session not found")
	}
	if sess.Status != SessionActive {
		return nil, apperr.InvalidState("session already ended")
	}

	enrolled := m.enrollments[sess.ClassID]
	present := 0
	backfill := 0
	for studentID := range enrolled {
		if _, marked := m.byOwner[[2]int64{sessionID, studentID}]; marked {
			present++
		} else {
			m.insertLocked(sessionID, studentID, StatusAbsent, now)
			backfill++
		}
	}

	sess.Status = SessionCompleted
	sess.EndTime = now
	cp := *sess
	return &EndResult{Session: &cp, Total: len(enrolled), Present: present, BackFill: backfill}, nil
}

func (m *MemoryStore) SessionRecords(_ context.Context, sessionID int64) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Record
	for _, rec := range m.records {
		if rec.SessionID == sessionID {
			res = append(res, *rec)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].MarkedAt.Before(res[j].MarkedAt) })
	return res, nil
}

func (m *MemoryStore) SessionRoll(_ context.Context, sessionID, classID int64) ([]RollEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []RollEntry
	for studentID := range m.enrollments[classID] {
		st := m.students[studentID]
		entry := RollEntry{StudentID: studentID, Username: st.username, Email: st.email, Status: StatusAbsent}
		if id, ok := m.byOwner[[2]int64{sessionID, studentID}]; ok {
			rec := m.records[id]
			entry.Status = rec.Status
			entry.HasRecord = true
			marked := rec.MarkedAt
			entry.MarkedAt = &marked
		}
		res = append(res, entry)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Username < res[j].Username })
	return res, nil
}

func (m *MemoryStore) historyLocked(match func(*Record, *Session) bool) []HistoryRecord {
	var res []HistoryRecord
	for _, rec := range m.records {
		sess := m.sessions[rec.SessionID]
		if !match(rec, sess) {
			continue
		}
		info := m.classes[sess.ClassID]
		st := m.students[rec.StudentID]
		res = append(res, HistoryRecord{
			RecordID:     rec.ID,
			SessionToken: sess.Token,
			ClassID:      info.ID,
			ClassCode:    info.Code,
			ClassName:    info.Name,
			StudentID:    rec.StudentID,
			StudentName:  st.username,
			Status:       rec.Status,
			MarkedAt:     rec.MarkedAt,
			SessionDate:  sess.StartTime,
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].MarkedAt.After(res[j].MarkedAt) })
	return res
}

func (m *MemoryStore) StudentHistory(_ context.Context, studentID int64) ([]HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.historyLocked(func(rec *Record, _ *Session) bool {
		return rec.StudentID == studentID
	}), nil
}

func (m *MemoryStore) TeacherHistory(_ context.Context, teacherID int64, f HistoryFilter) ([]HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.historyLocked(func(_ *Record, sess *Session) bool {
		if sess.TeacherID != teacherID {
			return false
		}
		if f.ClassID != 0 && sess.ClassID != f.ClassID {
			return false
		}
		if f.SessionToken != "" && sess.Token != f.SessionToken {
			return false
		}
		if !f.DateFrom.IsZero() && sess.StartTime.Before(f.DateFrom) {
			return false
		}
		if !f.DateTo.IsZero() && !sess.StartTime.Before(f.DateTo) {
			return false
		}
		return true
	}), nil
}
