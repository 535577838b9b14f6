package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxrelay/voxrelay/internal/capture"
	"github.com/voxrelay/voxrelay/internal/settings"
)

const (
	// emptyReplyPlaceholder stands in for an empty completion so the
	// exchange still resolves to an agent turn.
	emptyReplyPlaceholder = "No response from agent"
	// apologyText is recorded as the agent turn when dispatch fails, keeping
	// the conversation log consistent. Error detail goes out as a notice.
	apologyText = "Sorry, I ran into an error answering that."

	defaultDispatchTimeout = 30 * time.Second
)

// Controller owns one conversation: its turns, its turn-taking phase and its
// routing settings. All capture and dispatch for the session is single-flight,
// serialized by the phase gate.
type Controller struct {
	recognizer capture.Recognizer
	completer  Completer
	timeout    time.Duration
	hooks      Hooks
	logger     *zap.Logger

	mu         sync.Mutex
	phase      Phase
	turns      []Turn
	settings   settings.Settings
	stream     capture.Stream
	epoch      uint64
	lastTurnAt time.Time
}

func New(rec capture.Recognizer, comp Completer, timeout time.Duration, hooks Hooks, logger *zap.Logger) *Controller {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		recognizer: rec,
		completer:  comp,
		timeout:    timeout,
		hooks:      hooks,
		logger:     logger,
	}
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Turns returns a copy of the conversation so far.
func (c *Controller) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Controller) Settings() settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings replaces the session settings. An in-flight exchange keeps
// the copy it closed over at dispatch time; the next dispatch sees the update.
func (c *Controller) UpdateSettings(s settings.Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
}

// StartCapture begins a listening session. While the session is already
// listening or processing the call is a no-op and returns the current phase
// unchanged, which keeps at most one exchange in flight.
func (c *Controller) StartCapture(ctx context.Context) (Phase, error) {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		p := c.phase
		c.mu.Unlock()
		return p, nil
	}
	if err := c.settings.Validate(); err != nil {
		c.mu.Unlock()
		c.logger.Warn("capture refused: settings incomplete", zap.Error(err))
		c.notify(Notice{Kind: NoticeConfiguration, Message: err.Error()})
		return PhaseIdle, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	c.phase = PhaseListening
	epoch := c.epoch
	c.mu.Unlock()
	c.emitPhase(PhaseListening)

	stream, err := c.recognizer.Start(ctx)
	if err != nil {
		c.mu.Lock()
		if c.epoch == epoch && c.phase == PhaseListening {
			c.phase = PhaseIdle
		}
		c.mu.Unlock()
		c.emitPhase(PhaseIdle)
		c.notify(Notice{Kind: NoticeCapture, Message: "could not start speech capture"})
		return PhaseIdle, fmt.Errorf("starting capture: %w", err)
	}

	c.mu.Lock()
	if c.epoch != epoch || c.phase != PhaseListening {
		// Stopped or cleared while the recognizer was dialing.
		c.mu.Unlock()
		_ = stream.Close()
		return c.Phase(), nil
	}
	c.stream = stream
	c.mu.Unlock()

	go c.run(stream, epoch)
	return PhaseListening, nil
}

// StopCapture ends a listening session and discards the partial transcript.
// It does not interrupt an in-flight dispatch.
func (c *Controller) StopCapture() {
	c.mu.Lock()
	if c.phase != PhaseListening {
		c.mu.Unlock()
		return
	}
	stream := c.stream
	c.stream = nil
	c.phase = PhaseIdle
	c.epoch++
	c.mu.Unlock()
	if stream != nil {
		_ = stream.Close()
	}
	c.emitPhase(PhaseIdle)
}

// Clear empties the conversation and resets the phase to idle regardless of
// prior phase. A dispatch still in flight runs to completion but its result
// is discarded.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.epoch++
	stream := c.stream
	c.stream = nil
	c.turns = nil
	c.phase = PhaseIdle
	c.mu.Unlock()
	if stream != nil {
		_ = stream.Close()
	}
	c.emitPhase(PhaseIdle)
}

// SendAudio forwards captured audio to the live recognition stream. Outside
// the listening phase audio is dropped.
func (c *Controller) SendAudio(pcm []byte) error {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return nil
	}
	return stream.SendAudio(pcm)
}

// run consumes transcript events until a usable final arrives or the stream
// ends. Exactly one exchange can result from one run.
func (c *Controller) run(stream capture.Stream, epoch uint64) {
	for ev := range stream.Events() {
		if ev.Err != nil {
			c.logger.Warn("capture stream failed", zap.Error(ev.Err))
			c.notify(Notice{Kind: NoticeCapture, Message: ev.Err.Error()})
			break
		}
		if !ev.Final {
			if c.hooks.OnInterim != nil {
				c.hooks.OnInterim(ev.Text)
			}
			continue
		}
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			// Empty finals produce no turn and no phase change.
			continue
		}
		c.exchange(stream, epoch, text)
		return
	}
	// Stream ended with no usable final: discard the partial transcript.
	c.endListening(epoch)
}

func (c *Controller) endListening(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || c.phase != PhaseListening {
		c.mu.Unlock()
		return
	}
	c.stream = nil
	c.phase = PhaseIdle
	c.mu.Unlock()
	c.emitPhase(PhaseIdle)
}

// exchange appends the user turn, dispatches the assembled prompt, and
// reconciles the outcome into an agent turn.
func (c *Controller) exchange(stream capture.Stream, epoch uint64, utterance string) {
	c.mu.Lock()
	if c.epoch != epoch || c.phase != PhaseListening {
		c.mu.Unlock()
		return
	}
	c.stream = nil
	userTurn := c.appendTurnLocked(SpeakerUser, utterance)
	prompt := buildPrompt(c.turns[:len(c.turns)-1], utterance)
	snap := c.settings
	c.phase = PhaseProcessing
	c.mu.Unlock()

	_ = stream.Close()
	c.emitTurn(userTurn)
	c.emitPhase(PhaseProcessing)
	c.logger.Debug("dispatching utterance", zap.String("utterance", utterance))

	reply, err := c.dispatch(prompt, snap)

	c.mu.Lock()
	if c.epoch != epoch {
		// The conversation was cleared while the call was in flight.
		c.mu.Unlock()
		return
	}
	var agentTurn Turn
	if err != nil {
		agentTurn = c.appendTurnLocked(SpeakerAgent, apologyText)
	} else {
		if reply == "" {
			reply = emptyReplyPlaceholder
		}
		agentTurn = c.appendTurnLocked(SpeakerAgent, reply)
	}
	c.phase = PhaseIdle
	c.mu.Unlock()

	c.emitTurn(agentTurn)
	c.emitPhase(PhaseIdle)
	if err != nil {
		c.logger.Warn("dispatch failed", zap.Error(err))
		kind := NoticeGateway
		if errors.Is(err, ErrInvalidSettings) {
			kind = NoticeConfiguration
		}
		c.notify(Notice{Kind: kind, Message: err.Error()})
	}
}

// dispatch makes exactly one gateway call for the prompt. Settings that fail
// the dispatch contract fail closed before any network call.
func (c *Controller) dispatch(prompt string, s settings.Settings) (string, error) {
	if err := s.ValidateForDispatch(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	reply, err := c.completer.Complete(ctx, Request{
		Prompt:  prompt,
		AgentID: s.AgentID,
		Routing: Routing{Warehouse: s.Warehouse, Database: s.Database, Schema: s.Schema},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// appendTurnLocked records a turn with a non-decreasing timestamp.
func (c *Controller) appendTurnLocked(sp Speaker, text string) Turn {
	now := time.Now()
	if now.Before(c.lastTurnAt) {
		now = c.lastTurnAt
	}
	c.lastTurnAt = now
	t := Turn{ID: uuid.NewString(), Speaker: sp, Text: text, CreatedAt: now}
	c.turns = append(c.turns, t)
	return t
}

func (c *Controller) emitPhase(p Phase) {
	if c.hooks.OnPhase != nil {
		c.hooks.OnPhase(p)
	}
}

func (c *Controller) emitTurn(t Turn) {
	if c.hooks.OnTurn != nil {
		c.hooks.OnTurn(t)
	}
}

func (c *Controller) notify(n Notice) {
	if c.hooks.OnNotice != nil {
		c.hooks.OnNotice(n)
	}
}
