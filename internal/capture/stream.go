package capture

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// defaultSilenceThreshold is the base inactivity window required before an
// utterance is considered complete. Conservative to avoid cutting the user
// mid-sentence.
const defaultSilenceThreshold = 700 * time.Millisecond

// defaultContinuationExtension is added to the silence threshold when the
// last word suggests the user is likely to continue (e.g., "and", "or", "if").
const defaultContinuationExtension = 1200 * time.Millisecond

// WSConfig configures the streaming recognition websocket client.
type WSConfig struct {
	URL        string
	APIKey     string
	SampleRate int

	// SilenceThreshold and ContinuationExtension override the utterance
	// finalization windows; zero means the defaults.
	SilenceThreshold      time.Duration
	ContinuationExtension time.Duration

	Logger *zap.Logger
}

// WSRecognizer dials a streaming speech-recognition websocket per session.
type WSRecognizer struct {
	cfg WSConfig
}

func NewWSRecognizer(cfg WSConfig) *WSRecognizer {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = defaultSilenceThreshold
	}
	if cfg.ContinuationExtension == 0 {
		cfg.ContinuationExtension = defaultContinuationExtension
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &WSRecognizer{cfg: cfg}
}

// recognizer wire messages
type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Start dials the recognizer and returns a live stream. The stream ends when
// ctx is cancelled, Close is called, or the upstream terminates.
func (r *WSRecognizer) Start(ctx context.Context) (Stream, error) {
	if r.cfg.APIKey == "" {
		return nil, fmt.Errorf("recognizer api key is empty")
	}

	params := url.Values{}
	params.Set("sample_rate", strconv.Itoa(r.cfg.SampleRate))
	params.Set("encoding", "pcm_s16le")
	wsURL := r.cfg.URL + "?" + params.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	headers := map[string][]string{"Authorization": {r.cfg.APIKey}}
	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			r.cfg.Logger.Warn("recognizer dial rejected", zap.Int("status", resp.StatusCode))
		}
		return nil, fmt.Errorf("connecting to recognizer: %w", err)
	}

	s := &wsStream{
		cfg:    r.cfg,
		conn:   conn,
		events: make(chan Event, 64),
		audio:  make(chan []byte, 256),
		stopCh: make(chan struct{}),
		logger: r.cfg.Logger,
	}
	go s.readLoop()
	go s.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.stopCh:
		}
	}()
	return s, nil
}

type wsStream struct {
	cfg    WSConfig
	conn   *websocket.Conn
	events chan Event
	audio  chan []byte
	stopCh chan struct{}
	logger *zap.Logger

	closeOnce  sync.Once
	eventsOnce sync.Once

	// utterance accumulation
	accMu          sync.Mutex
	latest         string
	committed      string
	lastUpdateTime time.Time
	silenceTimer   *time.Timer
}

func (s *wsStream) Events() <-chan Event { return s.events }

func (s *wsStream) SendAudio(pcm []byte) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("recognition stream closed")
	default:
	}
	select {
	case s.audio <- pcm:
	default:
		s.logger.Debug("audio buffer full, dropping packet")
	}
	return nil
}

// Close terminates the stream. Any pending utterance delta is flushed as a
// final event before the events channel closes.
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.accMu.Lock()
		if s.silenceTimer != nil {
			s.silenceTimer.Stop()
			s.silenceTimer = nil
		}
		s.accMu.Unlock()
		_ = s.conn.WriteJSON(map[string]string{"type": "Terminate"})
		_ = s.conn.Close()
		s.flushPendingDelta()
		s.closeEvents()
	})
	return nil
}

func (s *wsStream) closeEvents() {
	s.eventsOnce.Do(func() { close(s.events) })
}

func (s *wsStream) readLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
			default:
				s.logger.Warn("recognizer read failed", zap.Error(err))
				s.emit(Event{Err: fmt.Errorf("recognition stream: %w", err)})
				_ = s.Close()
			}
			return
		}
		s.processMessage(message)
	}
}

func (s *wsStream) writeLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case pcm := <-s.audio:
			if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				s.logger.Warn("sending audio failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *wsStream) processMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(message, &base); err != nil {
		s.logger.Warn("unparseable recognizer message", zap.Error(err))
		return
	}
	switch base.Type {
	case "Begin":
		var msg beginMessage
		if err := sonic.Unmarshal(message, &msg); err == nil {
			s.logger.Debug("recognizer session began",
				zap.String("id", msg.ID),
				zap.Time("expires_at", time.Unix(msg.ExpiresAt, 0)))
		}
	case "Turn":
		var msg turnMessage
		if err := sonic.Unmarshal(message, &msg); err != nil {
			s.logger.Warn("bad turn message", zap.Error(err))
			return
		}
		if msg.Transcript == "" {
			return
		}
		s.emit(Event{Text: msg.Transcript})
		s.accMu.Lock()
		s.latest = msg.Transcript
		s.lastUpdateTime = time.Now()
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(s.cfg.SilenceThreshold, s.finalizeDueToSilence)
		} else {
			s.silenceTimer.Stop()
			s.silenceTimer.Reset(s.cfg.SilenceThreshold)
		}
		s.accMu.Unlock()
	case "Termination":
		s.logger.Debug("recognizer session terminated")
		_ = s.Close()
	case "Error":
		var msg errorMessage
		_ = sonic.Unmarshal(message, &msg)
		s.emit(Event{Err: fmt.Errorf("recognizer error: %s", msg.Error)})
		_ = s.Close()
	default:
		s.logger.Debug("unknown recognizer message", zap.String("type", base.Type))
	}
}

// finalizeDueToSilence fires after the silence threshold of transcript
// inactivity. It emits only the delta since the last committed utterance.
func (s *wsStream) finalizeDueToSilence() {
	select {
	case <-s.stopCh:
		return
	default:
	}

	s.accMu.Lock()
	threshold := s.cfg.SilenceThreshold
	if isContinuationLikely(s.latest) {
		threshold += s.cfg.ContinuationExtension
	}
	since := time.Since(s.lastUpdateTime)
	if since < threshold {
		// Not enough inactivity; reschedule for the remainder.
		wait := threshold - since
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		if s.silenceTimer == nil {
			s.silenceTimer = time.AfterFunc(wait, s.finalizeDueToSilence)
		} else {
			s.silenceTimer.Stop()
			s.silenceTimer.Reset(wait)
		}
		s.accMu.Unlock()
		return
	}
	delta := commitDelta(&s.latest, &s.committed)
	s.accMu.Unlock()

	if delta == "" {
		return
	}
	select {
	case <-s.stopCh:
	case s.events <- Event{Text: delta, Final: true}:
	}
}

// flushPendingDelta sends any remaining uncommitted transcript so the last
// words are not lost on shutdown. Best-effort.
func (s *wsStream) flushPendingDelta() {
	s.accMu.Lock()
	delta := commitDelta(&s.latest, &s.committed)
	s.accMu.Unlock()
	if delta == "" {
		return
	}
	select {
	case s.events <- Event{Text: delta, Final: true}:
	case <-time.After(200 * time.Millisecond):
		s.logger.Warn("timed out delivering final transcript delta")
	}
}

func (s *wsStream) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

// commitDelta advances committed to latest and returns the trimmed new text.
func commitDelta(latest, committed *string) string {
	delta := strings.TrimSpace(strings.TrimPrefix(*latest, *committed))
	if delta == "" && *committed != "" {
		if idx := strings.LastIndex(*latest, *committed); idx >= 0 {
			delta = strings.TrimSpace((*latest)[idx+len(*committed):])
		}
	}
	*committed = *latest
	return delta
}

// isContinuationLikely returns true if the last meaningful word indicates the
// speaker is likely to continue (conjunctions, prepositions, fillers).
func isContinuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	trim := strings.TrimSpace(text)
	if trim == "" {
		return ""
	}
	fields := strings.FieldsFunc(trim, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	// Coordinating conjunctions
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	// Subordinating conjunctions / conditionals
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	// Discourse markers / fillers
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	// Prepositions that are awkward sentence endings
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
}
