package session

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidSettings gates capture and dispatch on the settings contract.
var ErrInvalidSettings = errors.New("session: settings incomplete")

// Phase is the turn-taking state of a session.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseListening
	PhaseProcessing
)

func (p Phase) String() string {
	switch p {
	case PhaseListening:
		return "listening"
	case PhaseProcessing:
		return "processing"
	default:
		return "idle"
	}
}

// Speaker attributes a turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Turn is one message in the conversation.
type Turn struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// NoticeKind classifies a transient user-facing notice.
type NoticeKind string

const (
	NoticeConfiguration NoticeKind = "configuration"
	NoticeCapture       NoticeKind = "capture"
	NoticeGateway       NoticeKind = "gateway"
)

// Notice is a transient notification surfaced to the user; notices are not
// recorded in the conversation.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// Routing selects where a dispatched prompt executes.
type Routing struct {
	Warehouse string
	Database  string
	Schema    string
}

// Request is one completion dispatch. Credentials deliberately do not appear
// here; they are the completer's concern.
type Request struct {
	Prompt  string
	AgentID string
	Routing Routing
}

// Completer turns an assembled prompt into a single text completion.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Hooks receive session activity for rendering. All hooks are optional and
// are called outside the controller lock.
type Hooks struct {
	OnPhase   func(Phase)
	OnInterim func(text string)
	OnTurn    func(Turn)
	OnNotice  func(Notice)
}
