package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"palaver/internal/attachment"
	"palaver/internal/domain"
	"palaver/internal/domain/models/chat"
	"palaver/internal/prompts"
)

// memStore is an in-memory TranscriptStore for service tests.
type memStore struct {
	mu   sync.Mutex
	data map[string]chat.Transcript
	mod  map[string]time.Time
	now  time.Time
}

func newMemStore() *memStore {
	return &memStore{
		data: make(map[string]chat.Transcript),
		mod:  make(map[string]time.Time),
		now:  time.Unix(1_700_000_000, 0),
	}
}

func (m *memStore) key(userID, chatID string) string {
	return userID + "\x00" + chatID
}

func (m *memStore) touch(key string) {
	m.now = m.now.Add(time.Second)
	m.mod[key] = m.now
}

func (m *memStore) Load(_ context.Context, userID, chatID string) (chat.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(chat.Transcript{}, m.data[m.key(userID, chatID)]...), nil
}

func (m *memStore) Append(_ context.Context, userID, chatID string, turn chat.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.key(userID, chatID)
	m.data[key] = append(m.data[key], turn)
	m.touch(key)
	return nil
}

func (m *memStore) Save(_ context.Context, userID, chatID string, transcript chat.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := m.key(userID, chatID)
	m.data[key] = append(chat.Transcript{}, transcript...)
	m.touch(key)
	return nil
}

func (m *memStore) ListChats(_ context.Context, userID string) ([]chat.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := userID + "\x00"
	var refs []chat.Ref
	for key := range m.data {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			refs = append(refs, chat.Ref{ChatID: key[len(prefix):], LastModified: m.mod[key]})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].LastModified.After(refs[j].LastModified)
	})
	return refs, nil
}

func (m *memStore) DeleteAll(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := userID + "\x00"
	count := 0
	for key := range m.data {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(m.data, key)
			delete(m.mod, key)
			count++
		}
	}
	return count, nil
}

type fakeGateway struct {
	reply     string
	err       error
	imageData []byte
	imageErr  error
	gotBlocks []chat.ContentBlock
}

func (g *fakeGateway) Generate(_ context.Context, blocks []chat.ContentBlock) (string, error) {
	g.gotBlocks = blocks
	return g.reply, g.err
}

func (g *fakeGateway) GenerateImage(context.Context, string) ([]byte, error) {
	return g.imageData, g.imageErr
}

type fakeAttachments struct {
	stored int
}

func (f *fakeAttachments) Store(data []byte, _ string) (attachment.Ref, error) {
	if len(data) == 0 {
		return attachment.Ref{}, fmt.Errorf("%w: empty image", domain.ErrValidation)
	}
	f.stored++
	url := fmt.Sprintf("/uploads/fake_%d.png", f.stored)
	return attachment.Ref{URL: url, Path: "testdata" + url}, nil
}

func (f *fakeAttachments) Resolve(string) ([]byte, error) {
	return []byte{1, 2, 3}, nil
}

type serviceFixture struct {
	svc     *Service
	store   *memStore
	gateway *fakeGateway
	pack    *prompts.Pack
}

func newServiceFixture(t *testing.T, gateway *fakeGateway) *serviceFixture {
	t.Helper()
	pack, err := prompts.Load()
	if err != nil {
		t.Fatalf("loading prompts: %v", err)
	}

	store := newMemStore()
	files := &fakeAttachments{}
	assembler := NewAssembler(files, pack.SystemPreamble, pack.GreetingAck, testLogger())
	svc := NewService(store, assembler, gateway, files, nil, pack, testLogger())
	return &serviceFixture{svc: svc, store: store, gateway: gateway, pack: pack}
}

func TestCreateChatReportsPreviousChats(t *testing.T) {
	f := newServiceFixture(t, &fakeGateway{reply: "hi"})
	ctx := context.Background()

	first, hasPrevious, err := f.svc.CreateChat(ctx, "u1")
	if err != nil {
		t.Fatalf("CreateChat failed: %v", err)
	}
	if first == "" {
		t.Fatal("empty chat id")
	}
	if hasPrevious {
		t.Error("first chat reported previous chats")
	}

	second, hasPrevious, err := f.svc.CreateChat(ctx, "u1")
	if err != nil {
		t.Fatalf("second CreateChat failed: %v", err)
	}
	if second == first {
		t.Errorf("chat ids collide: %s", first)
	}
	if !hasPrevious {
		t.Error("second chat did not report previous chats")
	}
}

func TestAskPersistsBothTurns(t *testing.T) {
	f := newServiceFixture(t, &fakeGateway{reply: "the answer"})
	ctx := context.Background()

	reply, err := f.svc.Ask(ctx, &AskRequest{UserID: "u1", ChatID: "c1", Instruction: "the question"})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if reply != "the answer" {
		t.Errorf("reply = %q", reply)
	}

	transcript, _ := f.store.Load(ctx, "u1", "c1")
	if len(transcript) != 2 {
		t.Fatalf("expected user+bot turns, got %d", len(transcript))
	}
	if transcript[0].Role != chat.RoleUser || transcript[0].Text != "the question" {
		t.Errorf("user turn wrong: %+v", transcript[0])
	}
	if transcript[1].Role != chat.RoleBot || transcript[1].Text != "the answer" {
		t.Errorf("bot turn wrong: %+v", transcript[1])
	}
}

func TestAskFirstExchangeIncludesPreamble(t *testing.T) {
	gateway := &fakeGateway{reply: "hi"}
	f := newServiceFixture(t, gateway)
	ctx := context.Background()

	if _, err := f.svc.Ask(ctx, &AskRequest{UserID: "u1", ChatID: "c1", Instruction: "hello"}); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if len(gateway.gotBlocks) != 3 {
		t.Fatalf("first exchange sent %d blocks, want preamble pair + turn", len(gateway.gotBlocks))
	}
	if gateway.gotBlocks[0].Parts[0].Text != f.pack.SystemPreamble {
		t.Error("first block is not the system preamble")
	}

	// Second exchange must not repeat the preamble: 2 persisted + 1 new.
	if _, err := f.svc.Ask(ctx, &AskRequest{UserID: "u1", ChatID: "c1", Instruction: "again"}); err != nil {
		t.Fatalf("second Ask failed: %v", err)
	}
	if len(gateway.gotBlocks) != 3 {
		t.Fatalf("second exchange sent %d blocks, want 3", len(gateway.gotBlocks))
	}
	if gateway.gotBlocks[0].Parts[0].Text == f.pack.SystemPreamble {
		t.Error("preamble re-sent on a non-empty transcript")
	}
}

func TestAskValidationLeavesStoreUntouched(t *testing.T) {
	f := newServiceFixture(t, &fakeGateway{reply: "unused"})
	ctx := context.Background()

	_, err := f.svc.Ask(ctx, &AskRequest{UserID: "u1", ChatID: "c1"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	transcript, _ := f.store.Load(ctx, "u1", "c1")
	if len(transcript) != 0 {
		t.Errorf("rejected request mutated the transcript: %+v", transcript)
	}
}

func TestAskFilteredPersistsApology(t *testing.T) {
	f := newServiceFixture(t, &fakeGateway{err: fmt.Errorf("%w: blocked", domain.ErrContentFiltered)})
	ctx := context.Background()

	reply, err := f.svc.Ask(ctx, &AskRequest{UserID: "u1", ChatID: "c1", Instruction: "something"})
	if err != nil {
		t.Fatalf("filtered request should not fail the ask: %v", err)
	}
	if reply != f.pack.FilteredReply {
		t.Errorf("reply = %q, want the filtered fallback", reply)
	}

	transcript, _ := f.store.Load(ctx, "u1", "c1")
	if len(transcript) != 2 || transcript[1].Text != f.pack.FilteredReply {
		t.Errorf("apology not persisted as bot turn: %+v", transcript)
	}
}

func TestAskTransportFailurePersistsRetryReply(t *testing.T) {
	f := newServiceFixture(t, &fakeGateway{err: fmt.Errorf("%w: dial tcp", domain.ErrTransport)})
	ctx := context.Background()

	reply, err := f.svc.Ask(ctx, &AskRequest{UserID: "u1", ChatID: "c1", Instruction: "hello"})
	if err != nil {
		t.Fatalf("transport failure should not fail the ask: %v", err)
	}
	if reply != f.pack.RetryReply {
		t.Errorf("reply = %q, want the retry fallback", reply)
	}
}

func TestAskUnknownGatewayErrorPropagates(t *testing.T) {
	boom := errors.New("model request rejected")
	f := newServiceFixture(t, &fakeGateway{err: boom})
	ctx := context.Background()

	_, err := f.svc.Ask(ctx, &AskRequest{UserID: "u1", ChatID: "c1", Instruction: "hello"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected gateway error to propagate, got %v", err)
	}

	// The user turn is already persisted, but no bot turn follows.
	transcript, _ := f.store.Load(ctx, "u1", "c1")
	if len(transcript) != 1 || transcript[0].Role != chat.RoleUser {
		t.Errorf("unexpected transcript after hard failure: %+v", transcript)
	}
}

func TestAskWithImagePersistsAttachmentURL(t *testing.T) {
	f := newServiceFixture(t, &fakeGateway{reply: "a cat"})
	ctx := context.Background()

	reply, imageURL, err := f.svc.AskWithImage(ctx, &AskImageRequest{
		UserID:      "u1",
		ChatID:      "c1",
		Instruction: "what is this",
		Image:       []byte{0xff, 0xd8},
		Filename:    "photo.jpg",
	})
	if err != nil {
		t.Fatalf("AskWithImage failed: %v", err)
	}
	if reply != "a cat" {
		t.Errorf("reply = %q", reply)
	}
	if imageURL == "" {
		t.Fatal("no attachment URL returned")
	}

	transcript, _ := f.store.Load(ctx, "u1", "c1")
	if len(transcript) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(transcript))
	}
	if transcript[0].ImageURL != imageURL {
		t.Errorf("user turn image_url = %q, want %q", transcript[0].ImageURL, imageURL)
	}
}

func TestAskWithImageRequiresImage(t *testing.T) {
	f := newServiceFixture(t, &fakeGateway{reply: "unused"})

	_, _, err := f.svc.AskWithImage(context.Background(), &AskImageRequest{
		UserID: "u1", ChatID: "c1", Instruction: "no image here",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGenerateImagePersistsImageTurn(t *testing.T) {
	f := newServiceFixture(t, &fakeGateway{imageData: []byte{0x89, 0x50}})
	ctx := context.Background()

	reply, urls, err := f.svc.GenerateImage(ctx, &GenerateImageRequest{
		UserID: "u1", ChatID: "c1", Prompt: "a lighthouse",
	})
	if err != nil {
		t.Fatalf("GenerateImage failed: %v", err)
	}
	if reply != f.pack.ImageReply {
		t.Errorf("reply = %q", reply)
	}
	if len(urls) != 1 {
		t.Fatalf("expected one generated image URL, got %v", urls)
	}

	transcript, _ := f.store.Load(ctx, "u1", "c1")
	if len(transcript) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(transcript))
	}
	bot := transcript[1]
	if bot.Role != chat.RoleBot || len(bot.ImageURLs) != 1 || bot.ImageURLs[0] != urls[0] {
		t.Errorf("bot turn does not carry the generated image: %+v", bot)
	}
}

func TestGenerateImageFilteredPersistsApology(t *testing.T) {
	f := newServiceFixture(t, &fakeGateway{imageErr: fmt.Errorf("%w: blocked", domain.ErrContentFiltered)})
	ctx := context.Background()

	reply, urls, err := f.svc.GenerateImage(ctx, &GenerateImageRequest{
		UserID: "u1", ChatID: "c1", Prompt: "something disallowed",
	})
	if err != nil {
		t.Fatalf("filtered generation should not fail the request: %v", err)
	}
	if reply != f.pack.FilteredReply || urls != nil {
		t.Errorf("reply = %q urls = %v, want filtered fallback with no URLs", reply, urls)
	}

	transcript, _ := f.store.Load(ctx, "u1", "c1")
	if len(transcript) != 2 || transcript[1].Text != f.pack.FilteredReply {
		t.Errorf("apology not persisted: %+v", transcript)
	}
}

func TestListSummariesTitlesAndOrder(t *testing.T) {
	f := newServiceFixture(t, &fakeGateway{reply: "ok"})
	ctx := context.Background()

	f.store.Save(ctx, "u1", "older", chat.Transcript{chat.NewUserTurn("Fix my code\nplease", "")})
	f.store.Save(ctx, "u1", "newer", chat.Transcript{chat.NewUserTurn("Plan a trip to Lisbon for next spring", "")})
	f.store.Save(ctx, "u1", "empty", chat.Transcript{})

	summaries, err := f.svc.ListSummaries(ctx, "u1")
	if err != nil {
		t.Fatalf("ListSummaries failed: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
	if summaries[0].ChatID != "empty" || summaries[1].ChatID != "newer" || summaries[2].ChatID != "older" {
		t.Errorf("not ordered by recency: %+v", summaries)
	}
	if summaries[0].Title != "New Chat" {
		t.Errorf("empty chat title = %q", summaries[0].Title)
	}
	if summaries[1].Title != "Plan a trip to Lisbon for next..." {
		t.Errorf("long title not ellipsized: %q", summaries[1].Title)
	}
	if summaries[2].Title != "Fix my code" {
		t.Errorf("title = %q, want first line only", summaries[2].Title)
	}
}

func TestDeleteAllReturnsCount(t *testing.T) {
	f := newServiceFixture(t, &fakeGateway{reply: "ok"})
	ctx := context.Background()

	f.store.Save(ctx, "u1", "a", chat.Transcript{})
	f.store.Save(ctx, "u1", "b", chat.Transcript{})
	f.store.Save(ctx, "u2", "c", chat.Transcript{})

	count, err := f.svc.DeleteAll(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	remaining, _ := f.svc.ListSummaries(ctx, "u2")
	if len(remaining) != 1 {
		t.Errorf("other user's chats affected: %+v", remaining)
	}
}
