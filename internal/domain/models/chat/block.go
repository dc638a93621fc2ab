package chat

// Content block roles. The external model API distinguishes "user" and
// "model" turns and requires them to alternate.
const (
	BlockRoleUser  = "user"
	BlockRoleModel = "model"
)

// ContentBlock is one role-tagged unit of model input. A block holds one or
// more parts: text, and for user blocks optionally an inline image.
type ContentBlock struct {
	Role  string
	Parts []Part
}

// Part is either a text part or an inline image part. Image parts carry the
// base64-encoded payload plus its MIME type; Text is empty for image parts.
type Part struct {
	Text     string
	ImageB64 string
	MIMEType string
}

// TextBlock builds a single-part text block with the given role.
func TextBlock(role, text string) ContentBlock {
	return ContentBlock{Role: role, Parts: []Part{{Text: text}}}
}

// IsImage reports whether the part carries inline image data.
func (p Part) IsImage() bool {
	return p.ImageB64 != ""
}
