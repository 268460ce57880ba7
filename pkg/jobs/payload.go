package jobs

import (
	"encoding/json"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
)

// Payload is the spec's "dynamic payload bag": jobs carry free-form data
// represented as an opaque byte blob with a tagged variant facade. Raw holds
// the wire bytes; Unmarshal (or NewPayload) sets Type from the "type" field,
// and the As* methods decode Raw into the concrete variant (spec §9).
type Payload struct {
	Type string
	Raw  json.RawMessage
}

// Known payload type tags.
const (
	TypeChatResponse          = "CHAT_RESPONSE"
	TypeCorrectionStrengthen  = "CORRECTION_STRENGTHEN"
	TypeProactiveDetect       = "PROACTIVE_DETECT"
	TypeMemoryExtract         = "MEMORY_EXTRACT"
	TypeMarkdownSync          = "MARKDOWN_SYNC"
)

// ChatResponse is the payload variant enqueued by the Message Dispatcher
// (spec §4.11 step 4).
type ChatResponse struct {
	Prompt              string   `json:"prompt"`
	ConversationHistory []string `json:"conversationHistory"`
	GoalType            string   `json:"goalType"`
	SkillNames          []string `json:"skillNames,omitempty"`
}

// CorrectionStrengthen is the payload variant used by the Memory Pipeline's
// supersede/correction-clustering path.
type CorrectionStrengthen struct {
	ClusterFingerprint string   `json:"clusterFingerprint"`
	MemoryIDs          []string `json:"memoryIds"`
	TargetFile         string   `json:"targetFile"`
}

// ProactiveDetect is the payload variant used by the Memory Pipeline's
// signal-correlation path.
type ProactiveDetect struct {
	SignalFingerprint string   `json:"signalFingerprint"`
	EventIDs          []string `json:"eventIds"`
	Severity          string   `json:"severity"`
}

// MemoryExtract carries the raw model transcript to be run through the
// extraction pipeline.
type MemoryExtract struct {
	SessionID  string `json:"sessionId"`
	Transcript string `json:"transcript"`
}

// MarkdownSync carries the file path to resync against the vector store.
type MarkdownSync struct {
	FilePath string `json:"filePath"`
}

type tagged struct {
	Type string `json:"type"`
}

// Marshal serializes p back into its wire form, injecting the "type" tag.
func (p Payload) Marshal() (json.RawMessage, error) {
	if p.Type == "" {
		return nil, ctlerrors.WithClassification(errEmptyPayloadType, ctlerrors.Permanent)
	}
	var body map[string]interface{}
	if len(p.Raw) > 0 {
		if err := json.Unmarshal(p.Raw, &body); err != nil {
			return nil, ctlerrors.WithClassification(err, ctlerrors.Permanent)
		}
	} else {
		body = map[string]interface{}{}
	}
	body["type"] = p.Type
	return json.Marshal(body)
}

// Unmarshal decodes raw wire bytes, recording the type tag. It does not
// decode into a concrete variant struct; call the matching As* method (e.g.
// AsChatResponse) for that.
func (p *Payload) Unmarshal(raw json.RawMessage) error {
	var t tagged
	if err := json.Unmarshal(raw, &t); err != nil {
		return ctlerrors.WithClassification(err, ctlerrors.Permanent)
	}
	if t.Type == "" {
		return ctlerrors.WithClassification(errEmptyPayloadType, ctlerrors.Permanent)
	}
	p.Type = t.Type
	p.Raw = raw
	return nil
}

// NewPayload builds a Payload from a concrete variant value and its type
// tag.
func NewPayload(typ string, variant interface{}) (Payload, error) {
	raw, err := json.Marshal(variant)
	if err != nil {
		return Payload{}, ctlerrors.WithClassification(err, ctlerrors.Permanent)
	}
	return Payload{Type: typ, Raw: raw}, nil
}

var errEmptyPayloadType = &payloadTypeError{}

type payloadTypeError struct{}

func (e *payloadTypeError) Error() string { return "jobs: payload missing type tag" }

// AsChatResponse decodes the payload as ChatResponse, failing PERMANENT if
// the type tag doesn't match or the body is malformed.
func (p Payload) AsChatResponse() (ChatResponse, error) {
	var v ChatResponse
	return v, decodeVariant(p, TypeChatResponse, &v)
}

// AsCorrectionStrengthen decodes the payload as CorrectionStrengthen.
func (p Payload) AsCorrectionStrengthen() (CorrectionStrengthen, error) {
	var v CorrectionStrengthen
	return v, decodeVariant(p, TypeCorrectionStrengthen, &v)
}

// AsProactiveDetect decodes the payload as ProactiveDetect.
func (p Payload) AsProactiveDetect() (ProactiveDetect, error) {
	var v ProactiveDetect
	return v, decodeVariant(p, TypeProactiveDetect, &v)
}

// AsMemoryExtract decodes the payload as MemoryExtract.
func (p Payload) AsMemoryExtract() (MemoryExtract, error) {
	var v MemoryExtract
	return v, decodeVariant(p, TypeMemoryExtract, &v)
}

// AsMarkdownSync decodes the payload as MarkdownSync.
func (p Payload) AsMarkdownSync() (MarkdownSync, error) {
	var v MarkdownSync
	return v, decodeVariant(p, TypeMarkdownSync, &v)
}

func decodeVariant(p Payload, wantType string, dst interface{}) error {
	if p.Type != wantType {
		return ctlerrors.WithClassification(
			ctlerrors.FailedToWithDetails("jobs", "decode payload", p.Type, errUnknownPayloadType),
			ctlerrors.Permanent)
	}
	if err := json.Unmarshal(p.Raw, dst); err != nil {
		return ctlerrors.WithClassification(err, ctlerrors.Permanent)
	}
	return nil
}

var errUnknownPayloadType = &unknownPayloadTypeError{}

type unknownPayloadTypeError struct{}

func (e *unknownPayloadTypeError) Error() string { return "unexpected payload type tag" }
