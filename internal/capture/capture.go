package capture

import "context"

// Event is one transcript notification from a recognition stream. Interim
// events carry the running transcript text; a Final event carries a completed
// utterance. A non-nil Err reports a stream failure and is the last event
// before the channel closes.
type Event struct {
	Text  string
	Final bool
	Err   error
}

// Stream is a live recognition stream. Events closes when the stream ends,
// whether by Close, upstream termination, or error.
type Stream interface {
	Events() <-chan Event
	SendAudio(pcm []byte) error
	Close() error
}

// Recognizer starts recognition streams.
type Recognizer interface {
	Start(ctx context.Context) (Stream, error)
}
