package models

const (
	SourceMetadataKey = "source"
	SourcesMarker     = `(?i)SOURCES?:|QUESTION:\s`

	// DocumentTemplate renders one retrieved chunk inside the summaries block.
	DocumentTemplate  = "Content: %s\nSource: %s"
	DocumentSeparator = "\n\n"
)

// AnswerPromptTemplate is the system prompt of the answering chain, a go-template over .summaries.
var AnswerPromptTemplate = `Use the following pieces of context to answer the users question.
If you don't know the answer, just say that you don't know, don't try to make up an answer.
ALWAYS return a "SOURCES" part in your answer.
The "SOURCES" part should be a reference to the source of the document from which you got your answer.

Example of your response should be:

---

The answer is foo
SOURCES: xyz

---

Begin!
----------------
{{.summaries}}`

// Message authors shown in the chat.
const (
	AuthorChatbot = "Chatbot"
	AuthorError   = "Error"
	AuthorUser    = "User"
)

// SourceElement is a cited chunk attached to a reply.
type SourceElement struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Message is one entry of a session transcript.
type Message struct {
	Author   string          `json:"author"`
	Content  string          `json:"content"`
	Elements []SourceElement `json:"elements,omitempty"`
}

// Answer is the parsed output of the answering chain.
type Answer struct {
	Answer  string
	Sources string
}
