package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/teslashibe/go-voiceloop/pkg/mode"
	"github.com/teslashibe/go-voiceloop/pkg/tools"
)

// handleMessage decodes one text frame and dispatches it.
func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Warn("failed to parse message", "error", fmt.Errorf("%w: %v", ErrInvalidMessage, err))
		return
	}
	c.metrics.RecordEvent(ev.Type)
	c.OnEvent(ctx, ev)
}

// OnEvent applies one server event to the session state. It runs on the
// read loop; the player only queues audio and tools run on their own
// goroutines, so socket writes are the only thing it waits on.
func (c *Client) OnEvent(ctx context.Context, ev ServerEvent) {
	switch ev.Type {
	case EventSessionCreated:
		if ev.Session != nil && ev.Session.ID != "" {
			c.sessionMu.Lock()
			prev := c.sessionID
			c.sessionID = ev.Session.ID
			c.sessionMu.Unlock()
			c.logger.Info("session created", "session_id", ev.Session.ID, "previous_session_id", prev)
		}

	case EventSessionUpdated:
		c.logger.Debug("session updated")

	case EventOutputItemAdded, EventItemCreated:
		if ev.Item != nil && ev.Item.Type == "message" && ev.Item.Role == RoleAssistant {
			c.beginUtterance(ev.Item.ID)
		}

	case EventFunctionArgsDelta:
		c.appendToolArgs(ev)

	case EventFunctionArgsDone:
		c.finishToolCall(ctx, ev)

	case EventAudioDelta:
		c.handleAudioDelta(ev)

	case EventAudioDone:
		c.logger.Debug("assistant audio done", "item_id", ev.ItemID)
		c.player.Flush()

	case EventOutputItemDone:
		if ev.Item != nil {
			c.completeItem(ev.Item.ID)
		}

	case EventResponseDone:
		if ev.Response != nil {
			for _, item := range ev.Response.Output {
				c.completeItem(item.ID)
			}
		}

	case EventSpeechStarted:
		c.logger.Debug("server VAD: user speech started")
		if c.modes.Get() == mode.Streaming {
			c.Truncate("server_vad")
		}

	case EventSpeechStopped:
		c.logger.Debug("server VAD: user speech stopped")

	case EventInputTranscriptDone:
		c.logTurn(RoleUser, strings.TrimSpace(ev.Transcript))

	case EventResponseTranscriptDone:
		c.logTurn(RoleAssistant, strings.TrimSpace(ev.Transcript))

	case EventError:
		c.handleError(ev)

	default:
		c.logger.Debug("ignoring event", "type", ev.Type)
	}
}

// beginUtterance starts tracking a new assistant item.
func (c *Client) beginUtterance(itemID string) {
	if itemID == "" {
		return
	}
	c.itemMu.Lock()
	defer c.itemMu.Unlock()
	if c.utterance != nil && c.utterance.itemID == itemID {
		return
	}
	c.utterance = &utterance{itemID: itemID}
	c.logger.Debug("assistant utterance started", "item_id", itemID)
}

// completeItem ends tracking for a finished or cancelled item.
func (c *Client) completeItem(itemID string) {
	if itemID == "" {
		return
	}
	c.itemMu.Lock()
	defer c.itemMu.Unlock()
	if c.utterance != nil && c.utterance.itemID == itemID {
		c.utterance = nil
	}
	delete(c.truncated, itemID)
}

func (c *Client) handleAudioDelta(ev ServerEvent) {
	pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
	if err != nil {
		c.logger.Warn("invalid audio delta", "item_id", ev.ItemID, "error", err)
		return
	}

	c.itemMu.Lock()
	defer c.itemMu.Unlock()

	if _, ok := c.truncated[ev.ItemID]; ok {
		return
	}
	// Play only queues. Holding itemMu keeps a concurrent Truncate from
	// clearing between the check above and the enqueue.
	c.player.Play(pcm)
	if c.utterance != nil && c.utterance.itemID == ev.ItemID {
		c.utterance.playedMs += c.cfg.ChunkMs
	}
	c.metrics.RecordAudio("out", len(pcm))
}

func (c *Client) appendToolArgs(ev ServerEvent) {
	c.itemMu.Lock()
	defer c.itemMu.Unlock()
	p, ok := c.pending[ev.CallID]
	if !ok {
		p = &pendingCall{}
		c.pending[ev.CallID] = p
	}
	if ev.Name != "" {
		p.name = ev.Name
	}
	p.args.WriteString(ev.Delta)
}

// finishToolCall resolves the final arguments of a call and routes it.
func (c *Client) finishToolCall(ctx context.Context, ev ServerEvent) {
	c.itemMu.Lock()
	p := c.pending[ev.CallID]
	delete(c.pending, ev.CallID)
	c.itemMu.Unlock()

	name := ev.Name
	args := ev.Arguments
	if p != nil {
		if name == "" {
			name = p.name
		}
		if (args == "" || args == "{}") && p.args.Len() > 0 {
			args = p.args.String()
		}
	}

	c.logger.Info("tool call received", "name", name, "call_id", ev.CallID)
	c.logTurn(RoleToolCall, fmt.Sprintf("%s %s", name, args))

	if name == "" {
		c.submitError(ev.CallID, "function call is missing a name")
		return
	}

	parsed := map[string]any{}
	if strings.TrimSpace(args) != "" {
		if err := json.Unmarshal([]byte(args), &parsed); err != nil {
			c.logger.Warn("invalid tool arguments", "name", name, "call_id", ev.CallID, "error", err)
			c.submitError(ev.CallID, fmt.Sprintf("invalid arguments for %s: %v", name, err))
			return
		}
		if parsed == nil {
			parsed = map[string]any{}
		}
	}

	if name == tools.EndConversationName {
		c.endConversation(parsed)
		return
	}

	err := c.dispatcher.Dispatch(ctx, tools.Call{ID: ev.CallID, Name: name, Args: parsed}, c)
	if err != nil && !errors.Is(err, tools.ErrToolNotFound) {
		c.logger.Warn("tool dispatch failed", "name", name, "call_id", ev.CallID, "error", err)
	}
}

// endConversation handles the reserved tool. No result is sent for it.
func (c *Client) endConversation(args map[string]any) {
	reason, _ := args["reason"].(string)
	if reason == "" {
		reason = "no reason given"
	}

	if c.cfg.WakeWordAvailable {
		c.modes.Set(mode.ListeningForWakeWord)
		c.logger.Info("conversation ended, listening for wake word", "reason", reason)
	} else {
		c.logger.Info("conversation ended, wake word unavailable so streaming continues", "reason", reason)
	}
	c.player.Clear()
	c.logTurn(RoleSystemEvent, "conversation ended: "+reason)
}

func (c *Client) submitError(callID, message string) {
	if err := c.SubmitToolResult(callID, tools.ErrorResult(message)); err != nil {
		c.logger.Warn("submit error result failed", "call_id", callID, "error", err)
	}
}

func (c *Client) handleError(ev ServerEvent) {
	if ev.Error == nil {
		c.logger.Warn("error event without details")
		return
	}
	apiErr := &APIError{
		Type:    ev.Error.Type,
		Code:    ev.Error.Code,
		Message: ev.Error.Message,
		EventID: ev.Error.EventID,
	}
	if apiErr.SessionFatal() {
		c.logger.Error("fatal session error, closing socket", "error", apiErr)
		c.closeConn()
		return
	}
	c.logger.Warn("server error", "error", apiErr)
}
