package attendance

import (
	"math"
	"time"
)

// Session statuses. Expiry is never stored; it is the derived IsActive
// predicate, so a session past its end_time still reads "active" until the
// teacher ends it.
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
)

// Record statuses.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
)

// ValidStatus reports whether s is a record status accepted from callers.
func ValidStatus(s string) bool {
	return s == StatusPresent || s == StatusAbsent
}

// Payload is the snapshot embedded in the scannable code. It is captured once
// at session creation and never recomputed from live class data.
type Payload struct {
	SessionID string `json:"session_id"`
	ClassID   int64  `json:"class_id"`
	ClassCode string `json:"class_code"`
	ClassName string `json:"class_name"`
	Semester  string `json:"semester"`
	Teacher   string `json:"teacher"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Duration  int    `json:"duration"`
}

// Session is one attendance window for one class.
type Session struct {
	ID        int64     `json:"-"`
	Token     string    `json:"session_id"`
	ClassID   int64     `json:"class_id"`
	TeacherID int64     `json:"teacher_id"`
	StartTime time.Time `json:"start_time"`
	Duration  int       `json:"duration_minutes"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	Payload   Payload   `json:"qr_payload"`
	CreatedAt time.Time `json:"created_at"`
}

// IsActive reports whether self-marking is permitted at the given time. The
// stored status alone is not enough: a session can be past its end_time while
// its status still reads active.
func (s *Session) IsActive(now time.Time) bool {
	return s.Status == SessionActive && now.Before(s.EndTime)
}

// Record is one ledger row per (session, student). MarkedAt is the first-write
// time and is never updated by status overrides.
type Record struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"-"`
	StudentID int64     `json:"student_id"`
	Status    string    `json:"status"`
	MarkedAt  time.Time `json:"marked_at"`
}

// Stats summarizes present/absent counts for a session or a history query.
type Stats struct {
	Total   int     `json:"total"`
	Present int     `json:"present"`
	Absent  int     `json:"absent"`
	Rate    float64 `json:"rate"`
}

// ComputeStats derives the absent count and attendance rate.
func ComputeStats(total, present int) Stats {
	st := Stats{Total: total, Present: present, Absent: total - present}
	if total > 0 {
		st.Rate = math.Round(float64(present)/float64(total)*10000) / 100
	}
	return st
}

// RollEntry is one row of the per-session roll: the full enrollment set
// left-joined against the ledger. Students without a ledger row are reported
// absent with HasRecord false; no record is written.
type RollEntry struct {
	StudentID int64      `json:"student_id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Status    string     `json:"status"`
	HasRecord bool       `json:"has_record"`
	MarkedAt  *time.Time `json:"marked_at,omitempty"`
}

// HistoryRecord is a ledger row joined with its session and class context.
type HistoryRecord struct {
	RecordID     int64     `json:"record_id"`
	SessionToken string    `json:"session_id"`
	ClassID      int64     `json:"class_id"`
	ClassCode    string    `json:"class_code"`
	ClassName    string    `json:"class_name"`
	StudentID    int64     `json:"student_id"`
	StudentName  string    `json:"student_name"`
	Status       string    `json:"status"`
	MarkedAt     time.Time `json:"marked_at"`
	SessionDate  time.Time `json:"session_date"`
}

// HistoryFilter narrows a teacher history query. Zero values mean no filter.
// DateFrom/DateTo bound the session start time; DateTo is exclusive, callers
// wanting an inclusive day pass the following midnight.
type HistoryFilter struct {
	ClassID      int64
	SessionToken string
	DateFrom     time.Time
	DateTo       time.Time
}

// ClassInfo is the slice of class state the registry needs to build the
// payload snapshot and check ownership.
type ClassInfo struct {
	ID          int64
	Code        string
	Name        string
	Semester    string
	TeacherID   int64
	TeacherName string
}

// EndResult is what the atomic end-of-session transaction reports back.
// Present counts only students who were both enrolled and already marked;
// records for since-removed students stay stored but are not counted.
type EndResult struct {
	Session  *Session
	Total    int
	Present  int
	BackFill int
}
