package domain

import "time"

type TaskState string

const (
	StatePending   TaskState = "pending"
	StateRunning   TaskState = "running"
	StateCompleted TaskState = "completed"
	StateFailed    TaskState = "failed"
)

// Terminal reports whether no further state transition is allowed.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

type TaskKind string

const (
	KindVideo    TaskKind = "video"
	KindImage    TaskKind = "image"
	KindDocument TaskKind = "document"
)

func (k TaskKind) Valid() bool {
	switch k {
	case KindVideo, KindImage, KindDocument:
		return true
	}
	return false
}

// Task is one submitted generation job and its tracked state. Records live
// in the registry for the retention window only; there is no durable store
// behind them.
type Task struct {
	ID        string    `json:"id"`
	Kind      TaskKind  `json:"kind"`
	State     TaskState `json:"state"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
