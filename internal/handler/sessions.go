package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
)

func (h *Handler) publishAudit(c *gin.Context, evt queue.Event) {
	evt.At = time.Now().UTC()
	if err := h.q.Publish(c.Request.Context(), evt); err != nil {
		h.log.Warn("audit publish failed", zap.String("type", evt.Type), zap.Error(err))
	}
}

type createSessionRequest struct {
	ClassID         int64 `json:"class_id" binding:"required"`
	DurationMinutes int   `json:"duration_minutes" binding:"required,min=1,max=300"`
}

// CreateSession opens an attendance window and returns the session with its
// scannable payload.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	claims := auth.FromContext(c)
	sess, err := h.att.Create(c.Request.Context(), claims.UserID(), req.ClassID, req.DurationMinutes)
	if err != nil {
		h.fail(c, err)
		return
	}
	metrics.SessionsCreated.Inc()
	c.JSON(http.StatusCreated, sess)
}

// ActiveSessions lists the teacher's sessions still inside their window.
func (h *Handler) ActiveSessions(c *gin.Context) {
	claims := auth.FromContext(c)
	sessions, err := h.att.Active(c.Request.Context(), claims.UserID())
	if err != nil {
		h.fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []attendance.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// SessionDetail returns a session with its records and present/total counts.
func (h *Handler) SessionDetail(c *gin.Context) {
	claims := auth.FromContext(c)
	sess, records, stats, err := h.att.Detail(c.Request.Context(), claims.UserID(), c.Param("session_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{
		"session":    sess,
		"records":    records,
		"statistics": stats,
	})
}

// Mark is the student self-mark path. A repeat mark returns the existing
// record with already_marked set instead of an error.
func (h *Handler) Mark(c *gin.Context) {
	claims := auth.FromContext(c)
	token := c.Param("session_id")
	rec, alreadyMarked, err := h.att.Mark(c.Request.Context(), claims.UserID(), token)
	if err != nil {
		metrics.Marks.WithLabelValues(metrics.OutcomeRejected).Inc()
		h.fail(c, err)
		return
	}
	status := http.StatusCreated
	outcome := metrics.OutcomeMarked
	if alreadyMarked {
		status = http.StatusOK
		outcome = metrics.OutcomeDuplicate
	} else {
		h.publishAudit(c, queue.Event{
			Type:      queue.TypeMarked,
			SessionID: token,
			ActorID:   claims.UserID(),
			StudentID: claims.UserID(),
		})
	}
	metrics.Marks.WithLabelValues(outcome).Inc()
	c.JSON(status, gin.H{"record": rec, "already_marked": alreadyMarked})
}

// EndSession closes the window, back-fills absences and reports statistics.
func (h *Handler) EndSession(c *gin.Context) {
	claims := auth.FromContext(c)
	token := c.Param("session_id")
	sess, stats, err := h.att.End(c.Request.Context(), claims.UserID(), token)
	if err != nil {
		h.fail(c, err)
		return
	}
	metrics.SessionsEnded.Inc()
	metrics.AbsencesBackfilled.Add(float64(stats.Absent))
	h.publishAudit(c, queue.Event{
		Type:      queue.TypeSessionEnded,
		SessionID: token,
		ClassID:   sess.ClassID,
		ActorID:   claims.UserID(),
	})
	c.JSON(http.StatusOK, gin.H{"session": sess, "statistics": stats})
}

type manualMarkRequest struct {
	StudentID int64  `json:"student_id" binding:"required"`
	Status    string `json:"status" binding:"required,oneof=present absent"`
}

// ManualMark lets the teacher set a student's status, also after completion.
func (h *Handler) ManualMark(c *gin.Context) {
	var req manualMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	claims := auth.FromContext(c)
	rec, err := h.att.ManualMark(c.Request.Context(), claims.UserID(), c.Param("session_id"), req.StudentID, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

type updateRecordRequest struct {
	Status string `json:"status" binding:"required,oneof=present absent"`
}

// UpdateRecord flips a record's status by record id.
func (h *Handler) UpdateRecord(c *gin.Context) {
	recordID, ok := pathID(c, "record_id")
	if !ok {
		return
	}
	var req updateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	claims := auth.FromContext(c)
	rec, err := h.att.UpdateStatus(c.Request.Context(), claims.UserID(), recordID, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

// SessionAttendance returns the per-student roll for a session.
func (h *Handler) SessionAttendance(c *gin.Context) {
	claims := auth.FromContext(c)
	roll, err := h.att.Roll(c.Request.Context(), claims.UserID(), c.Param("session_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if roll == nil {
		roll = []attendance.RollEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"students": roll})
}
