package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/apperr"
)

const (
	teacherID = int64(1)
	studentA  = int64(10)
	studentB  = int64(11)
	classID   = int64(100)
)

func newTestService() (*Service, *MemoryStore, *time.Time) {
	st := NewMemoryStore()
	st.AddClass(ClassInfo{ID: classID, Code: "CS101", Name: "Intro to CS", Semester: "Fall 2026", TeacherID: teacherID, TeacherName: "prof"})
	st.AddStudent(studentA, "alice", "alice@example.com")
	st.AddStudent(studentB, "bob", "bob@example.com")
	st.Enroll(classID, studentA)
	st.Enroll(classID, studentB)

	now := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(st)
	svc.now = func() time.Time { return now }
	return svc, st, &now
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, teacherID, 0, 30)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Create(ctx, teacherID, classID, 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Create(ctx, teacherID, classID, 301)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Create(ctx, teacherID, 999, 30)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// owned by someone else reads as not found
	_, err = svc.Create(ctx, teacherID+1, classID, 30)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCreateFreezesPayload(t *testing.T) {
	svc, st, now := newTestService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, SessionActive, sess.Status)
	assert.Equal(t, now.Add(30*time.Minute), sess.EndTime)
	assert.Equal(t, "CS101", sess.Payload.ClassCode)
	assert.Equal(t, "prof", sess.Payload.Teacher)
	assert.Equal(t, 30, sess.Payload.Duration)
	assert.Equal(t, sess.Token, sess.Payload.SessionID)

	// renaming the class must not leak into the stored snapshot
	st.AddClass(ClassInfo{ID: classID, Code: "CS999", Name: "Renamed", Semester: "Fall 2026", TeacherID: teacherID, TeacherName: "prof"})
	got, err := svc.store.SessionByToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "CS101", got.Payload.ClassCode)
	assert.Equal(t, "Intro to CS", got.Payload.ClassName)
}

func TestActiveExcludesTimeExpired(t *testing.T) {
	svc, _, now := newTestService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)

	active, err := svc.Active(ctx, teacherID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, sess.Token, active[0].Token)

	// past end_time the session drops out of the list even though its
	// stored status is still active
	*now = now.Add(31 * time.Minute)
	active, err = svc.Active(ctx, teacherID)
	require.NoError(t, err)
	assert.Empty(t, active)

	got, err := svc.store.SessionByToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, SessionActive, got.Status)
	assert.False(t, got.IsActive(*now))
}

func TestMarkChecksOrder(t *testing.T) {
	svc, _, now := newTestService()
	ctx := context.Background()

	_, _, err := svc.Mark(ctx, studentA, "no-such-token")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	sess, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)

	outsider := int64(99)
	_, _, err = svc.Mark(ctx, outsider, sess.Token)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	// time expiry beats enrollment but not stored status
	*now = now.Add(31 * time.Minute)
	_, _, err = svc.Mark(ctx, studentA, sess.Token)
	assert.True(t, apperr.Is(err, apperr.KindExpired))

	// a completed session reports invalid state, not expiry
	_, _, err = svc.End(ctx, teacherID, sess.Token)
	require.NoError(t, err)
	_, _, err = svc.Mark(ctx, studentA, sess.Token)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestMarkIdempotent(t *testing.T) {
	svc, _, now := newTestService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)

	rec, already, err := svc.Mark(ctx, studentA, sess.Token)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, StatusPresent, rec.Status)
	assert.Equal(t, *now, rec.MarkedAt)

	*now = now.Add(5 * time.Minute)
	rec2, already, err := svc.Mark(ctx, studentA, sess.Token)
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, rec.ID, rec2.ID)
	assert.Equal(t, rec.MarkedAt, rec2.MarkedAt)

	records, err := svc.store.SessionRecords(ctx, sessID(t, svc, sess.Token))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func sessID(t *testing.T, svc *Service, token string) int64 {
	t.Helper()
	sess, err := svc.store.SessionByToken(context.Background(), token)
	require.NoError(t, err)
	require.NotNil(t, sess)
	return sess.ID
}

func TestEndBackfillsAbsences(t *testing.T) {
	svc, _, now := newTestService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)

	_, _, err = svc.Mark(ctx, studentA, sess.Token)
	require.NoError(t, err)

	*now = now.Add(10 * time.Minute)
	ended, stats, err := svc.End(ctx, teacherID, sess.Token)
	require.NoError(t, err)

	assert.Equal(t, SessionCompleted, ended.Status)
	assert.Equal(t, *now, ended.EndTime, "end_time must be the actual close time, not the scheduled one")
	assert.Equal(t, Stats{Total: 2, Present: 1, Absent: 1, Rate: 50.0}, stats)

	records, err := svc.store.SessionRecords(ctx, ended.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	byStudent := map[int64]string{}
	for _, r := range records {
		byStudent[r.StudentID] = r.Status
	}
	assert.Equal(t, StatusPresent, byStudent[studentA])
	assert.Equal(t, StatusAbsent, byStudent[studentB])
}

func TestEndRunsExactlyOnce(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)

	_, _, err = svc.End(ctx, teacherID, sess.Token)
	require.NoError(t, err)

	_, _, err = svc.End(ctx, teacherID, sess.Token)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestEndAfterScheduledExpiry(t *testing.T) {
	svc, _, now := newTestService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)

	// never explicitly ended, long past end_time: still endable exactly once
	*now = now.Add(2 * time.Hour)
	ended, stats, err := svc.End(ctx, teacherID, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, SessionCompleted, ended.Status)
	assert.Equal(t, 2, stats.Absent)
}

func TestEndOwnership(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)

	_, _, err = svc.End(ctx, teacherID+1, sess.Token)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, _, err = svc.End(ctx, teacherID, "no-such-token")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestEndExcludesRemovedStudents(t *testing.T) {
	svc, st, _ := newTestService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)

	_, _, err = svc.Mark(ctx, studentA, sess.Token)
	require.NoError(t, err)

	// A leaves the roster before the session ends: no back-filled absence,
	// A drops out of the totals, but the stored record survives
	st.Unenroll(classID, studentA)

	_, stats, err := svc.End(ctx, teacherID, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Present: 0, Absent: 1, Rate: 0}, stats)

	records, err := svc.store.SessionRecords(ctx, sessID(t, svc, sess.Token))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestManualMarkAfterCompletion(t *testing.T) {
	svc, _, now := newTestService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)
	_, _, err = svc.Mark(ctx, studentA, sess.Token)
	require.NoError(t, err)

	endedAt := now.Add(10 * time.Minute)
	*now = endedAt
	_, _, err = svc.End(ctx, teacherID, sess.Token)
	require.NoError(t, err)

	// correct B from absent to present post-hoc; marked_at keeps the
	// back-fill timestamp
	*now = now.Add(1 * time.Hour)
	rec, err := svc.ManualMark(ctx, teacherID, sess.Token, studentB, StatusPresent)
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, rec.Status)
	assert.Equal(t, endedAt, rec.MarkedAt)

	records, stats, err := svc.TeacherHistory(ctx, teacherID, HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, Stats{Total: 2, Present: 2, Absent: 0, Rate: 100.0}, stats)
}

func TestManualMarkValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)

	_, err = svc.ManualMark(ctx, teacherID, sess.Token, studentA, "late")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.ManualMark(ctx, teacherID, sess.Token, int64(99), StatusAbsent)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	// creates when missing
	rec, err := svc.ManualMark(ctx, teacherID, sess.Token, studentA, StatusAbsent)
	require.NoError(t, err)
	assert.Equal(t, StatusAbsent, rec.Status)
}

func TestUpdateStatusByRecordID(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)
	rec, _, err := svc.Mark(ctx, studentA, sess.Token)
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, teacherID, rec.ID, StatusAbsent)
	require.NoError(t, err)
	assert.Equal(t, StatusAbsent, updated.Status)
	assert.Equal(t, rec.MarkedAt, updated.MarkedAt)

	_, err = svc.UpdateStatus(ctx, teacherID+1, rec.ID, StatusPresent)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.UpdateStatus(ctx, teacherID, int64(12345), StatusPresent)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.UpdateStatus(ctx, teacherID, rec.ID, "late")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestRollReportsUnmarkedWithoutWriting(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)
	_, _, err = svc.Mark(ctx, studentA, sess.Token)
	require.NoError(t, err)

	roll, err := svc.Roll(ctx, teacherID, sess.Token)
	require.NoError(t, err)
	require.Len(t, roll, 2)

	byStudent := map[int64]RollEntry{}
	for _, e := range roll {
		byStudent[e.StudentID] = e
	}
	assert.True(t, byStudent[studentA].HasRecord)
	assert.Equal(t, StatusPresent, byStudent[studentA].Status)
	assert.False(t, byStudent[studentB].HasRecord)
	assert.Equal(t, StatusAbsent, byStudent[studentB].Status)

	// the roll is a read: no record materialized for B
	records, err := svc.store.SessionRecords(ctx, sessID(t, svc, sess.Token))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDetailCounts(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)
	_, _, err = svc.Mark(ctx, studentA, sess.Token)
	require.NoError(t, err)

	got, records, stats, err := svc.Detail(ctx, teacherID, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Token, got.Token)
	assert.Len(t, records, 1)
	assert.Equal(t, Stats{Total: 2, Present: 1, Absent: 1, Rate: 50.0}, stats)
}

func TestHistoryFilters(t *testing.T) {
	svc, st, now := newTestService()
	ctx := context.Background()

	otherClass := int64(200)
	st.AddClass(ClassInfo{ID: otherClass, Code: "CS202", Name: "Algorithms", Semester: "Fall 2026", TeacherID: teacherID, TeacherName: "prof"})
	st.Enroll(otherClass, studentA)

	s1, err := svc.Create(ctx, teacherID, classID, 30)
	require.NoError(t, err)
	_, _, err = svc.Mark(ctx, studentA, s1.Token)
	require.NoError(t, err)
	_, _, err = svc.End(ctx, teacherID, s1.Token)
	require.NoError(t, err)

	*now = now.Add(48 * time.Hour)
	s2, err := svc.Create(ctx, teacherID, otherClass, 30)
	require.NoError(t, err)
	_, _, err = svc.Mark(ctx, studentA, s2.Token)
	require.NoError(t, err)

	all, stats, err := svc.TeacherHistory(ctx, teacherID, HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, 2, stats.Present)

	byClass, _, err := svc.TeacherHistory(ctx, teacherID, HistoryFilter{ClassID: otherClass})
	require.NoError(t, err)
	assert.Len(t, byClass, 1)

	bySession, _, err := svc.TeacherHistory(ctx, teacherID, HistoryFilter{SessionToken: s1.Token})
	require.NoError(t, err)
	assert.Len(t, bySession, 2)

	cutoff := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	recent, _, err := svc.TeacherHistory(ctx, teacherID, HistoryFilter{DateFrom: cutoff})
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	early, _, err := svc.TeacherHistory(ctx, teacherID, HistoryFilter{DateTo: cutoff})
	require.NoError(t, err)
	assert.Len(t, early, 2)

	mine, err := svc.StudentHistory(ctx, studentA)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	// newest first
	assert.Equal(t, s2.Token, mine[0].SessionToken)
}
