package rag

// GenerationSystemPrompt seeds every new session as its first turn.
const GenerationSystemPrompt = "You are a helpful AI assistant. Use the given context to answer the user's question."

// generationPrompt is the grounded-question template. It is rendered into
// a disposable user turn for generation only; the persisted turn carries
// the user's original question.
const generationPrompt = `Answer the question below from the following context:
### Context: %s
### question: %s
`

// Classifier prompts. The model is asked for exactly one category name;
// the classifier tolerates anything else by substring matching with a
// fixed priority (see Classify).
const (
	classifierSystemPrompt = `You are an expert in classifying queries by their relevance to a dataset containing information about jobs and products.
Classify the input query into exactly one of the following categories:
- **Irrelevant**: The query is unrelated to jobs or products. Includes greetings, casual conversation, or meta-questions about the system.
- **Relevant**: The query directly concerns jobs or products and can be answered using the indexed data.
- **Complex**: The query is related to jobs or products but requires multi-step reasoning, comparisons, or advanced filtering.

Respond with only the category name: ` + "`Irrelevant`, `Relevant`, or `Complex`" + `. Do not include any explanation or additional text.`

	classifierPrompt = `Classify this query: %s`
)
