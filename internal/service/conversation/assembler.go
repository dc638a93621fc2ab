package conversation

import (
	"encoding/base64"
	"log/slog"

	"palaver/internal/domain/models/chat"
)

// AttachmentResolver re-materializes a stored attachment reference into its
// binary content.
type AttachmentResolver interface {
	Resolve(url string) ([]byte, error)
}

// Assembler builds the ordered, role-tagged content blocks submitted to the
// model. It is a pure transformation over already-loaded data: the only I/O
// is re-resolving attachment references, and a failed resolution skips the
// attachment rather than failing the assembly.
type Assembler struct {
	attachments AttachmentResolver
	preamble    string
	greeting    string
	logger      *slog.Logger
}

// NewAssembler creates an assembler. preamble and greeting form the
// synthetic exchange injected once for brand-new transcripts.
func NewAssembler(attachments AttachmentResolver, preamble, greeting string, logger *slog.Logger) *Assembler {
	return &Assembler{
		attachments: attachments,
		preamble:    preamble,
		greeting:    greeting,
		logger:      logger,
	}
}

// Assemble converts the persisted transcript plus the new user turn into
// model input.
//
// An empty transcript gets the synthetic preamble pair (user preamble, model
// acknowledgment) exactly once; once any real turn exists it is never sent
// again, since re-sending would bias the model toward repeating the
// greeting. The pairing also keeps the block sequence starting user, model,
// user for providers that enforce strict alternation.
func (a *Assembler) Assemble(transcript chat.Transcript, newTurn chat.Turn) []chat.ContentBlock {
	blocks := make([]chat.ContentBlock, 0, len(transcript)+3)

	if transcript.Empty() {
		blocks = append(blocks,
			chat.TextBlock(chat.BlockRoleUser, a.preamble),
			chat.TextBlock(chat.BlockRoleModel, a.greeting),
		)
	}

	for _, turn := range transcript {
		blocks = append(blocks, a.turnBlock(turn))
	}

	return append(blocks, a.turnBlock(newTurn))
}

// turnBlock converts one persisted turn into a content block. User turns
// re-embed their attachment; bot turns contribute text only (generated
// images are never re-submitted as context).
func (a *Assembler) turnBlock(turn chat.Turn) chat.ContentBlock {
	if !turn.IsUser() {
		return chat.TextBlock(chat.BlockRoleModel, turn.Text)
	}

	block := chat.TextBlock(chat.BlockRoleUser, turn.Text)
	if turn.ImageURL == "" {
		return block
	}

	data, err := a.attachments.Resolve(turn.ImageURL)
	if err != nil {
		a.logger.Warn("attachment unavailable, sending text only",
			"image_url", turn.ImageURL,
			"error", err,
		)
		return block
	}

	block.Parts = append(block.Parts, chat.Part{
		ImageB64: base64.StdEncoding.EncodeToString(data),
		MIMEType: mimeTypeFor(turn.ImageURL),
	})
	return block
}
