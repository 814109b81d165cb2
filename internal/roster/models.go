package roster

import "time"

// Class is a course section owned by a teacher.
type Class struct {
	ID           int64     `json:"id"`
	Code         string    `json:"class_code"`
	Name         string    `json:"class_name"`
	Semester     string    `json:"semester"`
	TeacherID    int64     `json:"teacher_id"`
	TeacherName  string    `json:"teacher_name"`
	StudentCount int       `json:"student_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Member is an enrolled student as seen from a class.
type Member struct {
	StudentID  int64     `json:"student_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	EnrolledAt time.Time `json:"enrolled_at"`
}
