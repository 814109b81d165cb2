package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
)

const dateLayout = "2006-01-02"

// TeacherHistory lists records across the teacher's sessions with optional
// class_id, session_id, date_from and date_to query filters. The date range
// is inclusive on both ends.
func (h *Handler) TeacherHistory(c *gin.Context) {
	var f attendance.HistoryFilter
	if v := c.Query("class_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid class_id"})
			return
		}
		f.ClassID = id
	}
	f.SessionToken = c.Query("session_id")
	if v := c.Query("date_from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date_from must be YYYY-MM-DD"})
			return
		}
		f.DateFrom = t
	}
	if v := c.Query("date_to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date_to must be YYYY-MM-DD"})
			return
		}
		f.DateTo = t.AddDate(0, 0, 1)
	}

	claims := auth.FromContext(c)
	records, stats, err := h.att.TeacherHistory(c.Request.Context(), claims.UserID(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	if records == nil {
		records = []attendance.HistoryRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "statistics": stats})
}

// MyAttendance lists the calling student's records, newest first.
func (h *Handler) MyAttendance(c *gin.Context) {
	claims := auth.FromContext(c)
	records, err := h.att.StudentHistory(c.Request.Context(), claims.UserID())
	if err != nil {
		h.fail(c, err)
		return
	}
	if records == nil {
		records = []attendance.HistoryRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}
