package realtime

// Server event types handled by the client.
const (
	EventSessionCreated         = "session.created"
	EventSessionUpdated         = "session.updated"
	EventOutputItemAdded        = "response.output_item.added"
	EventItemCreated            = "conversation.item.created"
	EventFunctionArgsDelta      = "response.function_call_arguments.delta"
	EventFunctionArgsDone       = "response.function_call_arguments.done"
	EventAudioDelta             = "response.audio.delta"
	EventAudioDone              = "response.audio.done"
	EventOutputItemDone         = "response.output_item.done"
	EventResponseDone           = "response.done"
	EventSpeechStarted          = "input_audio_buffer.speech_started"
	EventSpeechStopped          = "input_audio_buffer.speech_stopped"
	EventInputTranscriptDone    = "conversation.item.input_audio_transcription.completed"
	EventResponseTranscriptDone = "response.audio_transcript.done"
	EventError                  = "error"
)

// Client event types sent by the client.
const (
	ClientSessionUpdate  = "session.update"
	ClientAudioAppend    = "input_audio_buffer.append"
	ClientResponseCreate = "response.create"
	ClientItemCreate     = "conversation.item.create"
	ClientItemTruncate   = "conversation.item.truncate"
)

// ServerEvent is the union of all inbound event fields the client reads.
type ServerEvent struct {
	Type       string        `json:"type"`
	EventID    string        `json:"event_id,omitempty"`
	Session    *SessionInfo  `json:"session,omitempty"`
	Item       *Item         `json:"item,omitempty"`
	ItemID     string        `json:"item_id,omitempty"`
	CallID     string        `json:"call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
	Delta      string        `json:"delta,omitempty"`
	Arguments  string        `json:"arguments,omitempty"`
	Transcript string        `json:"transcript,omitempty"`
	Response   *ResponseInfo `json:"response,omitempty"`
	Error      *ErrorInfo    `json:"error,omitempty"`
}

// SessionInfo is the session object of session.created.
type SessionInfo struct {
	ID    string `json:"id"`
	Model string `json:"model,omitempty"`
}

// Item is a conversation item.
type Item struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Role   string `json:"role,omitempty"`
	CallID string `json:"call_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// ResponseInfo is the response object of response.done.
type ResponseInfo struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Output []Item `json:"output,omitempty"`
}

// ErrorInfo is the error object of an error event.
type ErrorInfo struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	EventID string `json:"event_id,omitempty"`
}

// SessionUpdate configures the session.
type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// SessionConfig is the body of session.update.
type SessionConfig struct {
	Modalities              []string             `json:"modalities"`
	Voice                   string               `json:"voice"`
	Instructions            string               `json:"instructions"`
	InputAudioFormat        string               `json:"input_audio_format"`
	OutputAudioFormat       string               `json:"output_audio_format"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           TurnDetection        `json:"turn_detection"`
	Tools                   []map[string]any     `json:"tools"`
	ToolChoice              string               `json:"tool_choice"`
}

// TranscriptionConfig enables input transcription.
type TranscriptionConfig struct {
	Model string `json:"model"`
}

// TurnDetection selects server-side voice activity detection.
type TurnDetection struct {
	Type string `json:"type"`
}

// AudioAppend appends base64 PCM16 to the input buffer.
type AudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// ResponseCreate asks the model to respond.
type ResponseCreate struct {
	Type     string          `json:"type"`
	Response *ResponseConfig `json:"response,omitempty"`
}

// ResponseConfig is the optional body of response.create.
type ResponseConfig struct {
	Modalities        []string `json:"modalities"`
	Voice             string   `json:"voice"`
	OutputAudioFormat string   `json:"output_audio_format"`
}

// ItemCreate adds a conversation item.
type ItemCreate struct {
	Type string     `json:"type"`
	Item OutputItem `json:"item"`
}

// OutputItem is a function_call_output item.
type OutputItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// ItemTruncate cuts an assistant item at the point playback stopped.
type ItemTruncate struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int    `json:"audio_end_ms"`
}
