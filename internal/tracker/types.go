package tracker

// Message is one inbound or outbound thread message.
type Message struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Body   string `json:"body"`
}

// Thread is the collaboration thread hosting one game.
type Thread struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Body   string `json:"body"`
	State  string `json:"state"`
}

// Thread states understood by the platform.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

type postMessageRequest struct {
	Body string `json:"body"`
}

type editMessageRequest struct {
	Body string `json:"body"`
}

type updateThreadRequest struct {
	Body  string `json:"body,omitempty"`
	State string `json:"state,omitempty"`
}

type assignRequest struct {
	Assignee string `json:"assignee"`
}

type labelRequest struct {
	Name string `json:"name"`
}
