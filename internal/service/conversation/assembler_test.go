package conversation

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"os"
	"testing"

	"palaver/internal/domain/models/chat"
)

type fakeResolver struct {
	files map[string][]byte
}

func (f *fakeResolver) Resolve(url string) ([]byte, error) {
	data, ok := f.files[url]
	if !ok {
		return nil, errors.New("no such attachment")
	}
	return data, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func newTestAssembler(files map[string][]byte) *Assembler {
	return NewAssembler(&fakeResolver{files: files}, "preamble", "greeting", testLogger())
}

func TestAssembleEmptyTranscriptGetsPreamblePair(t *testing.T) {
	a := newTestAssembler(nil)

	blocks := a.Assemble(chat.Transcript{}, chat.NewUserTurn("hello", ""))

	if len(blocks) != 3 {
		t.Fatalf("expected preamble, greeting and new turn, got %d blocks", len(blocks))
	}
	if blocks[0].Role != chat.BlockRoleUser || blocks[0].Parts[0].Text != "preamble" {
		t.Errorf("first block is not the preamble: %+v", blocks[0])
	}
	if blocks[1].Role != chat.BlockRoleModel || blocks[1].Parts[0].Text != "greeting" {
		t.Errorf("second block is not the greeting: %+v", blocks[1])
	}
	if blocks[2].Role != chat.BlockRoleUser || blocks[2].Parts[0].Text != "hello" {
		t.Errorf("last block is not the new turn: %+v", blocks[2])
	}
}

func TestAssembleNonEmptyTranscriptSkipsPreamble(t *testing.T) {
	a := newTestAssembler(nil)

	transcript := chat.Transcript{
		chat.NewUserTurn("first", ""),
		chat.NewBotTurn("reply"),
	}
	blocks := a.Assemble(transcript, chat.NewUserTurn("second", ""))

	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	wantRoles := []string{chat.BlockRoleUser, chat.BlockRoleModel, chat.BlockRoleUser}
	wantTexts := []string{"first", "reply", "second"}
	for i, block := range blocks {
		if block.Role != wantRoles[i] {
			t.Errorf("block %d role = %s, want %s", i, block.Role, wantRoles[i])
		}
		if block.Parts[0].Text != wantTexts[i] {
			t.Errorf("block %d text = %q, want %q", i, block.Parts[0].Text, wantTexts[i])
		}
	}
}

func TestAssembleEmbedsAttachment(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4e, 0x47}
	a := newTestAssembler(map[string][]byte{"/uploads/shot.png": payload})

	transcript := chat.Transcript{
		chat.NewUserTurn("look at this", "/uploads/shot.png"),
		chat.NewBotTurn("nice"),
	}
	blocks := a.Assemble(transcript, chat.NewUserTurn("and now?", ""))

	imageBlock := blocks[0]
	if len(imageBlock.Parts) != 2 {
		t.Fatalf("expected text part plus image part, got %d parts", len(imageBlock.Parts))
	}
	part := imageBlock.Parts[1]
	if !part.IsImage() {
		t.Fatal("second part is not an image part")
	}
	if part.MIMEType != "image/png" {
		t.Errorf("MIME type = %s, want image/png", part.MIMEType)
	}
	decoded, err := base64.StdEncoding.DecodeString(part.ImageB64)
	if err != nil {
		t.Fatalf("image part is not valid base64: %v", err)
	}
	if string(decoded) != string(payload) {
		t.Error("embedded image bytes do not round-trip")
	}
}

func TestAssembleMissingAttachmentFallsBackToText(t *testing.T) {
	a := newTestAssembler(nil)

	transcript := chat.Transcript{
		chat.NewUserTurn("deleted upload", "/uploads/gone.png"),
	}
	blocks := a.Assemble(transcript, chat.NewUserTurn("still there?", ""))

	if len(blocks[0].Parts) != 1 {
		t.Fatalf("expected text-only block for missing attachment, got %d parts", len(blocks[0].Parts))
	}
	if blocks[0].Parts[0].Text != "deleted upload" {
		t.Errorf("text part lost: %+v", blocks[0].Parts[0])
	}
}

func TestAssembleGeneratedImagesNotResubmitted(t *testing.T) {
	a := newTestAssembler(map[string][]byte{"/uploads/gen.png": {1, 2, 3}})

	transcript := chat.Transcript{
		chat.NewUserTurn("draw a cat", ""),
		chat.NewBotImageTurn("here you go", []string{"/uploads/gen.png"}),
	}
	blocks := a.Assemble(transcript, chat.NewUserTurn("thanks", ""))

	botBlock := blocks[1]
	if botBlock.Role != chat.BlockRoleModel {
		t.Fatalf("bot turn mapped to role %s", botBlock.Role)
	}
	if len(botBlock.Parts) != 1 || botBlock.Parts[0].IsImage() {
		t.Errorf("generated image leaked back into model context: %+v", botBlock.Parts)
	}
}

func TestAssembleNewTurnAttachmentIsEmbedded(t *testing.T) {
	a := newTestAssembler(map[string][]byte{"/uploads/new.jpg": {9, 9}})

	blocks := a.Assemble(chat.Transcript{chat.NewUserTurn("hi", ""), chat.NewBotTurn("hello")},
		chat.NewUserTurn("what is this", "/uploads/new.jpg"))

	last := blocks[len(blocks)-1]
	if len(last.Parts) != 2 || !last.Parts[1].IsImage() {
		t.Fatalf("new turn's attachment not embedded: %+v", last.Parts)
	}
	if last.Parts[1].MIMEType != "image/jpeg" {
		t.Errorf("MIME type = %s, want image/jpeg", last.Parts[1].MIMEType)
	}
}
