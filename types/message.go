package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single conversation turn entry. The message log is
// append-only and deduplicated by content hash.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ContentHash returns a stable hash of role and content, used for
// append-time deduplication of the message log.
func (m Message) ContentHash() string {
	h := sha256.Sum256([]byte(string(m.Role) + "\x00" + m.Content))
	return hex.EncodeToString(h[:16])
}

// Memory is the compacted conversation memory that survives a turn. An
// external collaborator may persist it between turns; everything else in the
// turn state is discarded at turn end.
type Memory struct {
	Summary string    `json:"summary,omitempty"`
	Facts   []string  `json:"facts,omitempty"`
	Window  []Message `json:"window,omitempty"`
}

// Clone returns a deep copy so node-level functional updates never alias.
func (m Memory) Clone() Memory {
	out := Memory{Summary: m.Summary}
	if len(m.Facts) > 0 {
		out.Facts = append([]string(nil), m.Facts...)
	}
	if len(m.Window) > 0 {
		out.Window = append([]Message(nil), m.Window...)
	}
	return out
}
