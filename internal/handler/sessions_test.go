package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/queue"
)

const (
	testTeacherID = int64(1)
	testStudentID = int64(10)
	testClassID   = int64(100)
)

// testRouter mounts the session routes with a fixed principal instead of the
// JWT middleware.
func testRouter(t *testing.T, userID int64, role string) (*gin.Engine, *attendance.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := attendance.NewMemoryStore()
	st.AddClass(attendance.ClassInfo{ID: testClassID, Code: "CS101", Name: "Intro to CS", Semester: "Fall 2026", TeacherID: testTeacherID, TeacherName: "prof"})
	st.AddStudent(testStudentID, "alice", "alice@example.com")
	st.Enroll(testClassID, testStudentID)

	h := &Handler{
		att: attendance.NewService(st),
		q:   queue.NewInMemory(8),
		log: zap.NewNop(),
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("claims", auth.Claims{
			Role: role,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject: strconv.FormatInt(userID, 10),
			},
		})
	})
	r.POST("/sessions/create", h.CreateSession)
	r.GET("/sessions/active", h.ActiveSessions)
	r.POST("/sessions/:session_id/mark", h.Mark)
	r.POST("/sessions/:session_id/end", h.EndSession)
	return r, st
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateSessionHTTP(t *testing.T) {
	r, _ := testRouter(t, testTeacherID, auth.RoleTeacher)

	w := doJSON(t, r, http.MethodPost, "/sessions/create", `{"class_id":100,"duration_minutes":30}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var sess struct {
		Token   string `json:"session_id"`
		Status  string `json:"status"`
		Payload struct {
			ClassCode string `json:"class_code"`
			Teacher   string `json:"teacher"`
			Duration  int    `json:"duration"`
		} `json:"qr_payload"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, attendance.SessionActive, sess.Status)
	assert.Equal(t, "CS101", sess.Payload.ClassCode)
	assert.Equal(t, "prof", sess.Payload.Teacher)
	assert.Equal(t, 30, sess.Payload.Duration)
}

func TestCreateSessionHTTPRejectsBadDuration(t *testing.T) {
	r, _ := testRouter(t, testTeacherID, auth.RoleTeacher)

	w := doJSON(t, r, http.MethodPost, "/sessions/create", `{"class_id":100,"duration_minutes":301}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func createSession(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/sessions/create", `{"class_id":100,"duration_minutes":30}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sess struct {
		Token string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	return sess.Token
}

func TestMarkHTTPIdempotent(t *testing.T) {
	teacher, st := testRouter(t, testTeacherID, auth.RoleTeacher)
	token := createSession(t, teacher)

	student := routerFor(t, st, testStudentID, auth.RoleStudent)

	w := doJSON(t, student, http.MethodPost, "/sessions/"+token+"/mark", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		AlreadyMarked bool `json:"already_marked"`
		Record        struct {
			Status string `json:"status"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.AlreadyMarked)
	assert.Equal(t, attendance.StatusPresent, resp.Record.Status)

	w = doJSON(t, student, http.MethodPost, "/sessions/"+token+"/mark", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.AlreadyMarked)
}

// routerFor mounts the same handler state for a different principal.
func routerFor(t *testing.T, st *attendance.MemoryStore, userID int64, role string) *gin.Engine {
	t.Helper()
	h := &Handler{
		att: attendance.NewService(st),
		q:   queue.NewInMemory(8),
		log: zap.NewNop(),
	}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("claims", auth.Claims{
			Role: role,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject: strconv.FormatInt(userID, 10),
			},
		})
	})
	r.POST("/sessions/:session_id/mark", h.Mark)
	r.POST("/sessions/:session_id/end", h.EndSession)
	return r
}

func TestMarkHTTPErrors(t *testing.T) {
	teacher, st := testRouter(t, testTeacherID, auth.RoleTeacher)
	token := createSession(t, teacher)

	student := routerFor(t, st, testStudentID, auth.RoleStudent)
	w := doJSON(t, student, http.MethodPost, "/sessions/does-not-exist/mark", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	outsider := routerFor(t, st, int64(999), auth.RoleStudent)
	w = doJSON(t, outsider, http.MethodPost, "/sessions/"+token+"/mark", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEndSessionHTTP(t *testing.T) {
	teacher, st := testRouter(t, testTeacherID, auth.RoleTeacher)
	token := createSession(t, teacher)

	student := routerFor(t, st, testStudentID, auth.RoleStudent)
	w := doJSON(t, student, http.MethodPost, "/sessions/"+token+"/mark", "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, teacher, http.MethodPost, "/sessions/"+token+"/end", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Session struct {
			Status string `json:"status"`
		} `json:"session"`
		Statistics attendance.Stats `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, attendance.SessionCompleted, resp.Session.Status)
	assert.Equal(t, attendance.Stats{Total: 1, Present: 1, Absent: 0, Rate: 100.0}, resp.Statistics)

	// ending twice is rejected
	w = doJSON(t, teacher, http.MethodPost, "/sessions/"+token+"/end", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}
