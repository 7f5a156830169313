package processor

// Event types delivered to progress observers.
const (
	EventStarted    = "started"
	EventProgress   = "progress"
	EventItemDone   = "item_done"
	EventItemFailed = "item_failed"
	EventCompleted  = "completed"
)

// Event is one progress notification emitted by the engine.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broadcaster fans events out to live observers. Implementations must never
// block: a slow or dead observer is the broadcaster's problem, not the
// engine's.
type Broadcaster interface {
	Broadcast(event Event)
}

// NopBroadcaster discards all events.
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(Event) {}

// ProgressData is the payload of progress events.
type ProgressData struct {
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Current   string `json:"current,omitempty"`
	Stage     string `json:"stage,omitempty"`
}

// ItemDoneData is the payload of item_done events.
type ItemDoneData struct {
	ArticleID string `json:"article_id"`
	Title     string `json:"title"`
}

// ItemFailedData is the payload of item_failed events.
type ItemFailedData struct {
	ArticleID string `json:"article_id"`
	Title     string `json:"title"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// CompletedData is the payload of completed events.
type CompletedData struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}
