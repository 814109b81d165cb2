package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rollcall/internal/auth"
)

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

type classRequest struct {
	Code     string `json:"class_code" binding:"required"`
	Name     string `json:"class_name" binding:"required"`
	Semester string `json:"semester" binding:"required"`
}

// CreateClass makes a class owned by the calling teacher.
func (h *Handler) CreateClass(c *gin.Context) {
	var req classRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	claims := auth.FromContext(c)
	cl, err := h.roster.Create(c.Request.Context(), claims.UserID(), req.Code, req.Name, req.Semester)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cl)
}

// ListClasses returns the teacher's classes.
func (h *Handler) ListClasses(c *gin.Context) {
	claims := auth.FromContext(c)
	classes, err := h.roster.List(c.Request.Context(), claims.UserID())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

// GetClass returns one class the teacher owns.
func (h *Handler) GetClass(c *gin.Context) {
	classID, ok := pathID(c, "class_id")
	if !ok {
		return
	}
	claims := auth.FromContext(c)
	cl, err := h.roster.Get(c.Request.Context(), claims.UserID(), classID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cl)
}

// UpdateClass rewrites a class the teacher owns.
func (h *Handler) UpdateClass(c *gin.Context) {
	classID, ok := pathID(c, "class_id")
	if !ok {
		return
	}
	var req classRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	claims := auth.FromContext(c)
	cl, err := h.roster.Update(c.Request.Context(), claims.UserID(), classID, req.Code, req.Name, req.Semester)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cl)
}

// DeleteClass removes a class; sessions and records cascade away with it.
func (h *Handler) DeleteClass(c *gin.Context) {
	classID, ok := pathID(c, "class_id")
	if !ok {
		return
	}
	claims := auth.FromContext(c)
	if err := h.roster.Delete(c.Request.Context(), claims.UserID(), classID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClassStudents lists the roster of a class.
func (h *Handler) ClassStudents(c *gin.Context) {
	classID, ok := pathID(c, "class_id")
	if !ok {
		return
	}
	claims := auth.FromContext(c)
	members, err := h.roster.Members(c.Request.Context(), claims.UserID(), classID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": members})
}

type addStudentRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// AddStudent enrolls a student, found by email, into the class.
func (h *Handler) AddStudent(c *gin.Context) {
	classID, ok := pathID(c, "class_id")
	if !ok {
		return
	}
	var req addStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	ctx := c.Request.Context()
	claims := auth.FromContext(c)
	student, err := h.users.StudentByEmail(ctx, req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.roster.AddStudent(ctx, claims.UserID(), classID, student.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"student": student})
}

// RemoveStudent drops an enrollment permanently.
func (h *Handler) RemoveStudent(c *gin.Context) {
	classID, ok := pathID(c, "class_id")
	if !ok {
		return
	}
	studentID, ok := pathID(c, "student_id")
	if !ok {
		return
	}
	claims := auth.FromContext(c)
	if err := h.roster.RemoveStudent(c.Request.Context(), claims.UserID(), classID, studentID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MyClasses lists the classes the calling student is enrolled in.
func (h *Handler) MyClasses(c *gin.Context) {
	claims := auth.FromContext(c)
	classes, err := h.roster.StudentClasses(c.Request.Context(), claims.UserID())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}
