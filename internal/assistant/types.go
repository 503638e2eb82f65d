package assistant

import (
	"encoding/json"
	"strings"

	"github.com/MrWong99/hallvoice/pkg/jsonrepair"
)

// IntentType discriminates [Intent].
type IntentType string

const (
	IntentChat   IntentType = "CHAT"
	IntentAction IntentType = "ACTION"
)

// Intent is the chat classifier's reading of one user utterance.
// CHAT intents carry Message. ACTION intents carry Reply, spoken at once,
// plus the Action (and optional Call and Payload) handed to the executor.
type Intent struct {
	Type    IntentType      `json:"type"`
	Message string          `json:"message,omitempty"`
	Reply   string          `json:"reply,omitempty"`
	Action  string          `json:"action,omitempty"`
	Call    string          `json:"call,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Speech returns the text to speak for the intent.
func (i Intent) Speech() string {
	if i.Type == IntentAction {
		return i.Reply
	}
	return i.Message
}

// ResultStatus discriminates [ActionResult].
type ResultStatus string

const (
	StatusDone  ResultStatus = "DONE"
	StatusInfo  ResultStatus = "INFO"
	StatusError ResultStatus = "ERROR"
	StatusReady ResultStatus = "READY"
)

// ActionResult is the executor's answer to an ACTION intent.
type ActionResult struct {
	Status  ResultStatus    `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Msg     string          `json:"msg,omitempty"`
	Call    string          `json:"call,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Role identifies the speaker of a [Turn].
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Turn is one visible line of the conversation. Turns live in memory only.
type Turn struct {
	Role Role
	Text string
}

// intentWire tolerates loosely typed classifier output.
type intentWire struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
	Reply   json.RawMessage `json:"reply"`
	Action  string          `json:"action"`
	Call    string          `json:"call"`
	Payload json.RawMessage `json:"payload"`
}

// ParseIntent turns a classifier reply into an [Intent]. reply may be a
// decoded JSON value or raw text possibly wrapping JSON. Anything that is not
// a recognisable CHAT or ACTION degrades to CHAT: plain text is spoken as is,
// other shapes get [MsgFallbackChat]. ParseIntent never fails.
func ParseIntent(reply any) Intent {
	switch v := reply.(type) {
	case nil:
		return Intent{Type: IntentChat, Message: MsgFallbackChat}
	case Intent:
		return normalizeIntent(v)
	case string:
		return parseIntentText(v)
	case json.RawMessage:
		return parseIntentJSON(v)
	case []byte:
		return parseIntentJSON(v)
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return Intent{Type: IntentChat, Message: MsgFallbackChat}
		}
		return parseIntentJSON(b)
	default:
		return Intent{Type: IntentChat, Message: MsgFallbackChat}
	}
}

func parseIntentText(text string) Intent {
	text = strings.TrimSpace(text)
	if text == "" {
		return Intent{Type: IntentChat, Message: MsgFallbackChat}
	}
	var w intentWire
	if jsonrepair.ExtractInto(text, &w) && w.Type != "" {
		return fromWire(w)
	}
	if strings.HasPrefix(text, "{") {
		return Intent{Type: IntentChat, Message: MsgFallbackChat}
	}
	return Intent{Type: IntentChat, Message: text}
}

func parseIntentJSON(raw []byte) Intent {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return parseIntentText(s)
	}
	var w intentWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Intent{Type: IntentChat, Message: MsgFallbackChat}
	}
	return fromWire(w)
}

// fromWire validates a decoded intent.
func fromWire(w intentWire) Intent {
	message, reply := textOf(w.Message), textOf(w.Reply)
	switch IntentType(strings.ToUpper(strings.TrimSpace(w.Type))) {
	case IntentAction:
		if strings.TrimSpace(w.Action) == "" {
			break
		}
		if reply == "" {
			reply = message
		}
		return normalizeIntent(Intent{
			Type:    IntentAction,
			Reply:   reply,
			Action:  strings.TrimSpace(w.Action),
			Call:    strings.TrimSpace(w.Call),
			Payload: w.Payload,
		})
	case IntentChat:
		if message == "" {
			message = reply
		}
		return normalizeIntent(Intent{Type: IntentChat, Message: message})
	}
	// Unknown type or an ACTION without an action: keep any text the
	// classifier produced.
	if message != "" {
		return Intent{Type: IntentChat, Message: message}
	}
	if reply != "" {
		return Intent{Type: IntentChat, Message: reply}
	}
	return Intent{Type: IntentChat, Message: MsgFallbackChat}
}

func normalizeIntent(i Intent) Intent {
	switch i.Type {
	case IntentAction:
		if i.Reply == "" {
			i.Reply = MsgActionAck
		}
	default:
		i.Type = IntentChat
		if strings.TrimSpace(i.Message) == "" {
			i.Message = MsgFallbackChat
		}
	}
	return i
}

// textOf returns raw as a string when it is a JSON string, else "".
func textOf(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// ParseActionResult decodes an executor response. Noisy bodies are repaired
// with jsonrepair. A body without a recognisable status becomes an ERROR.
func ParseActionResult(body []byte) ActionResult {
	var r ActionResult
	if !jsonrepair.ExtractInto(string(body), &r) {
		return ActionResult{Status: StatusError, Msg: MsgActionError}
	}
	r.Status = ResultStatus(strings.ToUpper(strings.TrimSpace(string(r.Status))))
	switch r.Status {
	case StatusDone, StatusInfo, StatusError, StatusReady:
	default:
		return ActionResult{Status: StatusError, Msg: MsgActionError}
	}
	return r
}
