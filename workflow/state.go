package workflow

import (
	"time"

	"github.com/BaSui01/queryflow/types"
)

// State is the per-turn value threaded through the node sequence. Nodes never
// mutate a State in place: each takes the current value and returns a new one,
// so a node can be tested in isolation and a turn can be replayed
// deterministically.
type State struct {
	TurnID string
	UserID string
	Query  string

	// Set by IntentDetect.
	Domain string

	// Set by Retrieve.
	Citations            []types.Citation
	RetrievalUnavailable bool
	RetrievalCacheHit    bool

	// Set by Generate.
	Answer        string
	Language      string
	SectionIDs    []string
	Degraded      bool
	GenerateCalls int
	PromptTokens  int
	OutputTokens  int

	// Set by Guardrail and the retry decision.
	ValidationErrors []string
	RetryCount       int

	// Set by ExecuteDomainWorkflow.
	Action *ActionDescriptor

	Memory   types.Memory
	Messages []types.Message

	StartedAt time.Time
}

// clone returns a copy with its slices detached, so appends on the copy never
// alias the parent state.
func (s State) clone() State {
	out := s
	out.Citations = append([]types.Citation(nil), s.Citations...)
	out.SectionIDs = append([]string(nil), s.SectionIDs...)
	out.ValidationErrors = append([]string(nil), s.ValidationErrors...)
	out.Messages = append([]types.Message(nil), s.Messages...)
	out.Memory = s.Memory.Clone()
	return out
}

// appendMessage adds a message to the turn log unless an identical one (by
// content hash) is already present.
func (s State) appendMessage(msg types.Message) State {
	out := s.clone()
	h := msg.ContentHash()
	for _, m := range out.Messages {
		if m.ContentHash() == h {
			return out
		}
	}
	out.Messages = append(out.Messages, msg)
	return out
}

// ActionDescriptor is the side-effect-free output of the domain action node:
// a prepared action (e.g. a draft ticket) whose actual execution is a
// separate, explicitly confirmed step outside this engine.
type ActionDescriptor struct {
	Type    string         `json:"type"`
	Domain  string         `json:"domain"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Telemetry is the per-turn measurement block returned to the caller and
// mirrored into the metrics collector.
type Telemetry struct {
	TurnID           string        `json:"turn_id"`
	Domain           string        `json:"domain"`
	Latency          time.Duration `json:"latency"`
	PromptTokens     int           `json:"prompt_tokens"`
	OutputTokens     int           `json:"output_tokens"`
	CitationCount    int           `json:"citation_count"`
	CacheHit         bool          `json:"cache_hit"`
	RetryCount       int           `json:"retry_count"`
	Degraded         bool          `json:"degraded"`
	ValidationErrors []string      `json:"validation_errors,omitempty"`
}

// TurnResult is the externally visible outcome of one workflow turn.
type TurnResult struct {
	Answer    string           `json:"answer"`
	Citations []types.Citation `json:"citations"`
	Memory    types.Memory     `json:"memory"`
	Action    *ActionDescriptor `json:"action,omitempty"`
	Telemetry Telemetry        `json:"telemetry"`
}
