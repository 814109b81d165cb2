package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exposed on /metrics.
var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_created_total",
		Help: "Attendance sessions opened by teachers.",
	})

	SessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_ended_total",
		Help: "Attendance sessions closed and reconciled.",
	})

	AbsencesBackfilled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_absences_backfilled_total",
		Help: "Absent records written by end-of-session reconciliation.",
	})

	Marks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_marks_total",
		Help: "Self-mark attempts by outcome.",
	}, []string{"outcome"})
)

// Mark outcomes.
const (
	OutcomeMarked    = "marked"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)
