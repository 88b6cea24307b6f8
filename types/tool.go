package types

// ToolTask is a single schema-validated tool invocation request.
type ToolTask struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of one ToolTask. Results are matched to tasks
// positionally; one task's failure never aborts its siblings.
type ToolResult struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Success   bool           `json:"success"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ToolSource identifies where a resolved tool lives.
type ToolSource string

const (
	// ToolSourceLocal is a tool registered in-process.
	ToolSourceLocal ToolSource = "local"
	// ToolSourceRemote is a tool advertised by a remote catalog.
	ToolSourceRemote ToolSource = "remote"
)

// ToolInvocation is the tagged result of resolving a free-form tool name
// against the closed catalog. Resolution is a single deterministic step;
// unknown names are rejected with a typed error instead of dispatched.
type ToolInvocation struct {
	Name    string     `json:"name"`
	Source  ToolSource `json:"source"`
	Catalog string     `json:"catalog,omitempty"`
}

// ParameterSpec describes one tool input parameter.
type ParameterSpec struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// ToolDescriptor declares a tool's name and input schema.
type ToolDescriptor struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Parameters  map[string]ParameterSpec `json:"parameters,omitempty"`
	// Independent marks the tool as safe to batch concurrently with other
	// independent tools.
	Independent bool `json:"independent"`
}
