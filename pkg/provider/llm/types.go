package llm

// Conversation roles. Providers map RoleAssistant to their own name for model
// turns (e.g. "model" for Gemini).
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Attachment is an inline file sent with a user message, typically an image.
type Attachment struct {
	// Data is the raw file content.
	Data []byte

	// MIMEType names the content type, e.g. "image/png".
	MIMEType string
}

// Message represents a single message in a chat conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string

	// Attachments are inline files sent with a user message.
	Attachments []Attachment
}

// Source is a web page the model cited while grounding an answer in search
// results.
type Source struct {
	// URI is the address of the cited page.
	URI string

	// Title is the page title as reported by the search backend.
	Title string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsVision indicates the model can process image attachments.
	SupportsVision bool

	// SupportsSearch indicates the provider can ground answers in live web
	// search results.
	SupportsSearch bool

	// SupportsThinking indicates the model accepts a thinking budget.
	SupportsThinking bool

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}
