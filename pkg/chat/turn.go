package chat

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one side of an exchange. Values are copied, never shared.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the payload sent to the answering backend.
type Request struct {
	Message string `json:"message"`
	History []Turn `json:"history"`
}
