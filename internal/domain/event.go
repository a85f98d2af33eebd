package domain

type EventType string

const (
	EventConnected    EventType = "connected"
	EventSubscribed   EventType = "subscribed"
	EventUnsubscribed EventType = "unsubscribed"
	EventPong         EventType = "pong"
	EventTaskUpdate   EventType = "task_update"
	EventError        EventType = "error"
)

// Event is one progress-bus frame. The variant set is closed; observers can
// switch on Type without string sniffing.
type Event struct {
	Type   EventType `json:"type"`
	TaskID string    `json:"task_id,omitempty"`
	Task   *Task     `json:"task,omitempty"`
	Error  string    `json:"error,omitempty"`
}
