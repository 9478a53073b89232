package tools

import (
	"context"
	"time"
)

// EndConversationName is the reserved tool the model calls to go back to
// wake-word listening. It is handled by the session, never dispatched.
const EndConversationName = "end_conversation_and_listen_for_wakeword"

// EndConversation is the reserved tool's definition.
var EndConversation = Definition{
	Name: EndConversationName,
	Description: "Call this function when the current conversation topic or the user's immediate query " +
		"has been fully addressed and the assistant should return to a passive state, listening for " +
		"its wake word. Also use this if the user explicitly ends the conversation (e.g., 'thank you, " +
		"that's all', 'goodbye', 'stop listening', 'go to sleep').",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": "A brief reason why the conversation is ending, e.g. 'User said goodbye'.",
			},
		},
		"required": []string{"reason"},
	},
}

// CurrentTime returns a tool reporting the local date and time.
// now may be nil, in which case time.Now is used.
func CurrentTime(now func() time.Time) Tool {
	if now == nil {
		now = time.Now
	}
	return Tool{
		Definition: Definition{
			Name:        "get_current_time",
			Description: "Get the current local date and time. Use this when the user asks what time or day it is.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"timezone": map[string]any{
						"type":        "string",
						"description": "Optional IANA timezone, e.g. 'Europe/London'. Defaults to local time.",
					},
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			t := now()
			if tz, _ := args["timezone"].(string); tz != "" {
				loc, err := time.LoadLocation(tz)
				if err != nil {
					return "", err
				}
				t = t.In(loc)
			}
			return t.Format("Monday, January 2, 2006 at 3:04 PM MST"), nil
		},
	}
}

// Builtins returns the tools registered by default.
func Builtins() []Tool {
	return []Tool{CurrentTime(nil)}
}
