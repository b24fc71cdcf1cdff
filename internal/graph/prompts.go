package graph

// Entity extraction prompts. The extractor asks for a bare comma-separated
// list so the output can be split without JSON parsing.
const (
	entitySystemPrompt = `You are expert at extracting entities from the text. These entities will be used for graph data retrieval.
You must generate the output as a comma-separated list of strings, where each element represents an extracted entity. Do not output any reasoning. Provide the list only.`

	entityPrompt = `Use the given format to extract entities from the following input: %s`
)
