package dashboard

import "time"

// Event is the envelope pushed to every connected dashboard client.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

type activityData struct {
	Identity string `json:"identity"`
	Channel  string `json:"channel"`
	Content  string `json:"content"`
}

type promptData struct {
	Identity     string `json:"identity"`
	Engine       string `json:"engine"`
	MessageCount int    `json:"message_count"`
}

type responseData struct {
	Identity    string   `json:"identity"`
	RequestID   string   `json:"request_id"`
	Engine      string   `json:"engine"`
	WasFallback bool     `json:"was_fallback"`
	Errors      []string `json:"errors,omitempty"`
	Reply       string   `json:"reply"`
}

type awayData struct {
	Away   bool   `json:"away"`
	Reason string `json:"reason,omitempty"`
}

type pendingData struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Content  string `json:"content"`
}

// Command is what a dashboard client sends back over the socket.
type Command struct {
	Action string `json:"action"`
	UserID string `json:"user_id,omitempty"`
	Key    string `json:"key,omitempty"`
	Value  string `json:"value,omitempty"`
	Enable bool   `json:"enable,omitempty"`
}
