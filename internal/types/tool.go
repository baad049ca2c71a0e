package types

// ToolDefinition is the provider-neutral description of a tool offered to
// the model. The llm adapters convert it to the provider wire format.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ArtifactNotice is delivered to the caller after a generation tool has
// produced and persisted a new artifact.
type ArtifactNotice struct {
	ArtifactID string `json:"artifactId"`
	Filename   string `json:"filename"`
	Prompt     string `json:"prompt"`
	Model      string `json:"model"`
}
