package domain

// Attachment is one file attached to an outgoing message. Content is the raw
// bytes; encoding is the dispatcher's concern.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// MailMessage is the provider-independent outgoing message shape.
type MailMessage struct {
	To          []string     `json:"to"`
	Cc          []string     `json:"cc,omitempty"`
	Subject     string       `json:"subject"`
	HTMLBody    string       `json:"html_body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}
