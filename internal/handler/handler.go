package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/apperr"
	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/roster"
	"rollcall/internal/store"
	"rollcall/internal/users"
)

// Handler wires the HTTP surface to the services.
type Handler struct {
	cfg    config.App
	users  *users.Service
	roster *roster.Service
	att    *attendance.Service
	q      queue.Queue
	db     *store.DB
	redis  *store.Redis
	log    *zap.Logger
}

// New creates a handler.
func New(cfg config.App, us *users.Service, rs *roster.Service, as *attendance.Service,
	q queue.Queue, db *store.DB, redis *store.Redis, log *zap.Logger) *Handler {
	return &Handler{cfg: cfg, users: us, roster: rs, att: as, q: q, db: db, redis: redis, log: log}
}

// Register mounts all routes on the engine.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/api/v1")
	v1.GET("/ping", h.Ping)
	v1.POST("/auth/register", h.RegisterUser)
	v1.POST("/auth/token", h.Login)
	v1.POST("/auth/token/refresh", h.Refresh)

	authed := v1.Group("", auth.UserAuth(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))
	authed.GET("/auth/me", h.Me)

	teacher := authed.Group("", auth.RequireRole(auth.RoleTeacher))
	teacher.POST("/auth/check-student", h.CheckStudent)
	teacher.GET("/classes", h.ListClasses)
	teacher.POST("/classes", h.CreateClass)
	teacher.GET("/classes/:class_id", h.GetClass)
	teacher.PUT("/classes/:class_id", h.UpdateClass)
	teacher.DELETE("/classes/:class_id", h.DeleteClass)
	teacher.GET("/classes/:class_id/students", h.ClassStudents)
	teacher.POST("/classes/:class_id/add-student", h.AddStudent)
	teacher.DELETE("/classes/:class_id/remove-student/:student_id", h.RemoveStudent)

	teacher.POST("/sessions/create", h.CreateSession)
	teacher.GET("/sessions/active", h.ActiveSessions)
	teacher.GET("/sessions/:session_id", h.SessionDetail)
	teacher.POST("/sessions/:session_id/end", h.EndSession)
	teacher.POST("/sessions/:session_id/mark-student", h.ManualMark)
	teacher.GET("/sessions/:session_id/attendance", h.SessionAttendance)
	teacher.GET("/teachers/attendance-history", h.TeacherHistory)
	teacher.PATCH("/attendance/:record_id/update", h.UpdateRecord)

	student := authed.Group("", auth.RequireRole(auth.RoleStudent))
	student.POST("/sessions/:session_id/mark", h.Mark)
	student.GET("/students/my-classes", h.MyClasses)
	student.GET("/students/my-attendance", h.MyAttendance)
}

// Ping is the unauthenticated liveness probe.
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "server is running"})
}

// Healthz reports database and redis connectivity.
func (h *Handler) Healthz(c *gin.Context) {
	ctx := c.Request.Context()
	dbHealthy := h.db != nil && h.db.Client != nil && h.db.Client.PingContext(ctx) == nil
	redisHealthy := h.redis.Healthy(ctx)
	status := http.StatusOK
	if !dbHealthy || !redisHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "db": dbHealthy, "redis": redisHealthy})
}

// fail maps an application error to its status code. Internal errors are
// logged and masked.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
