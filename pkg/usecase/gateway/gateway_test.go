package gateway_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/chack/pkg/backend"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/chack/pkg/tool"
	"github.com/m-mizutani/chack/pkg/usecase/gateway"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/urfave/cli/v3"
)

// Mock Backend
type converseStep struct {
	out *backend.ConverseOutput
	err error
}

type mockBackend struct {
	mu         sync.Mutex
	steps      []converseStep
	calls      int
	onConverse func(input *backend.ConverseInput)

	summary        string
	summarizeErr   error
	summarizeCalls int
	summarized     [][]model.Message
}

func (m *mockBackend) Converse(ctx context.Context, input *backend.ConverseInput) (*backend.ConverseOutput, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	hook := m.onConverse
	m.mu.Unlock()

	if hook != nil {
		hook(input)
	}

	if idx < len(m.steps) {
		step := m.steps[idx]
		if step.err != nil {
			return nil, step.err
		}
		return step.out, nil
	}

	// Default: echo the most recent message.
	text := "ok"
	if len(input.Messages) > 0 {
		text = "re:" + input.Messages[len(input.Messages)-1].Text
	}
	return &backend.ConverseOutput{Text: text}, nil
}

func (m *mockBackend) Summarize(ctx context.Context, input *backend.SummarizeInput) (string, model.Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summarizeCalls++
	m.summarized = append(m.summarized, input.Messages)

	if m.summarizeErr != nil {
		return "", model.Usage{}, m.summarizeErr
	}
	if m.summary != "" {
		return m.summary, model.Usage{}, nil
	}
	return "summary", model.Usage{}, nil
}

func (m *mockBackend) converseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Mock Repository
type mockRepo struct {
	mu      sync.Mutex
	records map[model.ConversationKey]*model.LongTermMemoryRecord
	getErr  error
	putErr  error
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[model.ConversationKey]*model.LongTermMemoryRecord)}
}

func (m *mockRepo) GetMemory(ctx context.Context, key model.ConversationKey) (*model.LongTermMemoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.records[key], nil
}

func (m *mockRepo) PutMemory(ctx context.Context, key model.ConversationKey, rec *model.LongTermMemoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	if rec == nil {
		delete(m.records, key)
		return nil
	}
	m.records[key] = rec
	return nil
}

// Mock Responder
type mockResponder struct {
	mu      sync.Mutex
	replies []string
}

func (m *mockResponder) Reply(ctx context.Context, reply *model.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, reply.Text)
	return nil
}

func (m *mockResponder) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.replies...)
}

// Fake tool
type echoTool struct {
	mu    sync.Mutex
	calls []model.ToolCall
	fail  bool
	out   string
}

func (t *echoTool) Flags() []cli.Flag { return nil }

func (t *echoTool) Specs() []*model.ToolSpec {
	return []*model.ToolSpec{{
		Name:        "echo",
		Description: "Echo the given text",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"text": {Type: "string"},
			},
		},
	}}
}

func (t *echoTool) Execute(ctx context.Context, call model.ToolCall) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, call)
	if t.fail {
		return "", goerr.New("echo failed")
	}
	if t.out != "" {
		return t.out, nil
	}
	if text, ok := call.Args["text"].(string); ok {
		return text, nil
	}
	return "echoed", nil
}

func (t *echoTool) Init(ctx context.Context) (bool, error) { return true, nil }
func (t *echoTool) Prompt(ctx context.Context) string      { return "" }

func newTestRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	t.Helper()
	if len(tools) == 0 {
		tools = []tool.Tool{&echoTool{}}
	}
	registry, err := tool.New(context.Background(), nil, tools...)
	gt.NoError(t, err)
	return registry
}

func dmEvent(chatID, text string) *model.Event {
	return &model.Event{
		Platform: "test",
		Kind:     model.ChatKindDM,
		ChatID:   chatID,
		SenderID: "u1",
		Text:     text,
	}
}

func newOrchestrator(t *testing.T, cfg gateway.Config, b backend.Backend, repo *mockRepo, opts ...gateway.OrchestratorOption) *gateway.Orchestrator {
	t.Helper()
	if repo == nil {
		repo = newMockRepo()
	}
	orch, err := gateway.New(context.Background(), cfg, b, repo, newTestRegistry(t), opts...)
	gt.NoError(t, err)
	return orch
}

func allowDMConfig() gateway.Config {
	return gateway.Config{
		SystemPrompt: "You are a test bot.",
		Admission:    gateway.AdmissionConfig{AllowDMs: true},
	}
}

func TestAdmittedDMProducesOneReply(t *testing.T) {
	b := &mockBackend{}
	orch := newOrchestrator(t, allowDMConfig(), b, nil)
	rsp := &mockResponder{}

	admitted := orch.HandleEvent(context.Background(), dmEvent("c1", "hello"), rsp)
	gt.True(t, admitted)

	replies := rsp.all()
	gt.A(t, replies).Length(1)
	gt.True(t, strings.HasPrefix(replies[0], "re:hello"))
	gt.S(t, replies[0]).Contains("🔁 1/")
	gt.S(t, replies[0]).Contains("🧰 0")
	gt.S(t, replies[0]).Contains("💲 unknown")
}

func TestRepeatedEventStartsFreshAccounting(t *testing.T) {
	b := &mockBackend{}
	orch := newOrchestrator(t, allowDMConfig(), b, nil)
	rsp := &mockResponder{}

	ev := dmEvent("c1", "ping")
	gt.True(t, orch.HandleEvent(context.Background(), ev, rsp))
	gt.True(t, orch.HandleEvent(context.Background(), ev, rsp))

	// Each turn counts its own rounds; nothing carries over.
	replies := rsp.all()
	gt.A(t, replies).Length(2)
	gt.S(t, replies[0]).Contains("🔁 1/")
	gt.S(t, replies[1]).Contains("🔁 1/")
	gt.S(t, replies[1]).Contains("🧰 0")
}

func TestRejectedDMIsSilentlyDropped(t *testing.T) {
	b := &mockBackend{}
	orch := newOrchestrator(t, gateway.Config{}, b, nil)
	rsp := &mockResponder{}

	admitted := orch.HandleEvent(context.Background(), dmEvent("c1", "hello"), rsp)
	gt.False(t, admitted)
	gt.A(t, rsp.all()).Length(0)
	gt.Equal(t, b.converseCalls(), 0)
}

func TestChannelTriggerWordAdmission(t *testing.T) {
	cfg := gateway.Config{
		Admission: gateway.AdmissionConfig{
			ChannelIDs:   []string{"ch-1"},
			TriggerWords: []string{"chack"},
		},
	}
	b := &mockBackend{}
	orch := newOrchestrator(t, cfg, b, nil)

	ev := &model.Event{
		Platform:  "test",
		Kind:      model.ChatKindChannel,
		ChatID:    "room",
		ChannelID: "ch-1",
		SenderID:  "u1",
		Text:      "hey Chack, what's up?",
	}
	rsp := &mockResponder{}
	gt.True(t, orch.HandleEvent(context.Background(), ev, rsp))
	gt.A(t, rsp.all()).Length(1)

	ev2 := *ev
	ev2.Text = "nothing to see here"
	gt.False(t, orch.HandleEvent(context.Background(), &ev2, &mockResponder{}))
}

func TestToolCallingRoundsAndAccounting(t *testing.T) {
	call := func(id string) model.ToolCall {
		return model.ToolCall{ID: id, Name: "echo", Args: map[string]any{"text": "t" + id}}
	}
	b := &mockBackend{steps: []converseStep{
		{out: &backend.ConverseOutput{ToolCalls: []model.ToolCall{call("1")}}},
		{out: &backend.ConverseOutput{ToolCalls: []model.ToolCall{call("2")}}},
		{out: &backend.ConverseOutput{ToolCalls: []model.ToolCall{call("3")}}},
		{out: &backend.ConverseOutput{Text: "done"}},
	}}

	cfg := allowDMConfig()
	cfg.Loop.MaxRounds = 5
	orch := newOrchestrator(t, cfg, b, nil)
	rsp := &mockResponder{}

	gt.True(t, orch.HandleEvent(context.Background(), dmEvent("c1", "go"), rsp))

	replies := rsp.all()
	gt.A(t, replies).Length(1)
	gt.True(t, strings.HasPrefix(replies[0], "done"))
	gt.S(t, replies[0]).Contains("🔁 4/5")
	gt.S(t, replies[0]).Contains("🧰 3")
}

func TestToolFailureIsFedBack(t *testing.T) {
	failing := &echoTool{fail: true}
	b := &mockBackend{steps: []converseStep{
		{out: &backend.ConverseOutput{ToolCalls: []model.ToolCall{
			{ID: "1", Name: "echo", Args: map[string]any{"text": "x"}},
		}}},
	}}

	cfg := allowDMConfig()
	repo := newMockRepo()
	orch, err := gateway.New(context.Background(), cfg, b, repo, newTestRegistry(t, failing))
	gt.NoError(t, err)

	rsp := &mockResponder{}
	gt.True(t, orch.HandleEvent(context.Background(), dmEvent("c1", "go"), rsp))

	// Second round sees the failed result and still finishes the turn.
	replies := rsp.all()
	gt.A(t, replies).Length(1)
	gt.True(t, strings.HasPrefix(replies[0], "re:ERROR: "))
}

func TestRoundBudgetExceeded(t *testing.T) {
	loop := &backend.ConverseOutput{ToolCalls: []model.ToolCall{
		{ID: "1", Name: "echo", Args: map[string]any{"text": "x"}},
	}}
	b := &mockBackend{steps: []converseStep{{out: loop}, {out: loop}, {out: loop}}}

	cfg := allowDMConfig()
	cfg.Loop.MaxRounds = 2
	orch := newOrchestrator(t, cfg, b, nil)

	rsp := &mockResponder{}
	gt.True(t, orch.HandleEvent(context.Background(), dmEvent("c1", "go"), rsp))

	replies := rsp.all()
	gt.A(t, replies).Length(1)
	gt.S(t, replies[0]).Contains("step budget")
	gt.S(t, replies[0]).Contains("🔁 2/2")
}

func TestBackendRetrySucceeds(t *testing.T) {
	b := &mockBackend{steps: []converseStep{
		{err: goerr.New("transient")},
		{err: goerr.New("transient")},
		{out: &backend.ConverseOutput{Text: "third time lucky"}},
	}}

	cfg := allowDMConfig()
	cfg.Loop.BackendAttempts = 3
	cfg.Loop.RetryInterval = time.Millisecond
	orch := newOrchestrator(t, cfg, b, nil)

	rsp := &mockResponder{}
	gt.True(t, orch.HandleEvent(context.Background(), dmEvent("c1", "go"), rsp))

	replies := rsp.all()
	gt.A(t, replies).Length(1)
	gt.True(t, strings.HasPrefix(replies[0], "third time lucky"))
	gt.Equal(t, b.converseCalls(), 3)
}

func TestBackendRetryExhaustedSendsApology(t *testing.T) {
	b := &mockBackend{steps: []converseStep{
		{err: goerr.New("down")},
		{err: goerr.New("down")},
		{err: goerr.New("down")},
	}}

	cfg := allowDMConfig()
	cfg.Loop.BackendAttempts = 3
	cfg.Loop.RetryInterval = time.Millisecond
	orch := newOrchestrator(t, cfg, b, nil)

	rsp := &mockResponder{}
	gt.True(t, orch.HandleEvent(context.Background(), dmEvent("c1", "go"), rsp))

	replies := rsp.all()
	gt.A(t, replies).Length(1)
	gt.Equal(t, replies[0], "Sorry, I ran into an error while processing that.")
	gt.Equal(t, b.converseCalls(), 3)
}

func TestSameKeyTurnsCompleteInOrder(t *testing.T) {
	b := &mockBackend{onConverse: func(*backend.ConverseInput) {
		time.Sleep(10 * time.Millisecond)
	}}
	orch := newOrchestrator(t, allowDMConfig(), b, nil)
	rsp := &mockResponder{}

	ctx := context.Background()
	var dones []<-chan struct{}
	for _, text := range []string{"first", "second", "third"} {
		admitted, done := orch.Dispatch(ctx, dmEvent("c1", text), rsp)
		gt.True(t, admitted)
		dones = append(dones, done)
	}
	for _, done := range dones {
		<-done
	}

	replies := rsp.all()
	gt.A(t, replies).Length(3)
	gt.True(t, strings.HasPrefix(replies[0], "re:first"))
	gt.True(t, strings.HasPrefix(replies[1], "re:second"))
	gt.True(t, strings.HasPrefix(replies[2], "re:third"))
}

func TestDifferentKeysRunInParallel(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)
	b := &mockBackend{onConverse: func(*backend.ConverseInput) {
		// Both turns must be inside a backend call at the same time.
		barrier.Done()
		barrier.Wait()
	}}
	orch := newOrchestrator(t, allowDMConfig(), b, nil)
	rsp := &mockResponder{}

	ctx := context.Background()
	_, done1 := orch.Dispatch(ctx, dmEvent("c1", "a"), rsp)
	_, done2 := orch.Dispatch(ctx, dmEvent("c2", "b"), rsp)
	<-done1
	<-done2

	gt.A(t, rsp.all()).Length(2)
}

func TestQueuedTurnTimesOut(t *testing.T) {
	release := make(chan struct{})
	b := &mockBackend{onConverse: func(*backend.ConverseInput) {
		<-release
	}}

	cfg := allowDMConfig()
	cfg.TurnTimeout = 50 * time.Millisecond
	orch := newOrchestrator(t, cfg, b, nil)
	rsp := &mockResponder{}

	ctx := context.Background()
	_, done1 := orch.Dispatch(ctx, dmEvent("c1", "slow"), rsp)
	_, done2 := orch.Dispatch(ctx, dmEvent("c1", "queued"), rsp)

	<-done2
	close(release)
	<-done1

	replies := rsp.all()
	gt.A(t, replies).Length(2)
	gt.Equal(t, replies[0], "Sorry, that took too long and timed out.")
}

func TestUsageSinkAndPricing(t *testing.T) {
	b := &mockBackend{steps: []converseStep{
		{out: &backend.ConverseOutput{
			Text: "priced",
			Usage: model.Usage{
				Model:            "test-model",
				PromptTokens:     1_000_000,
				CompletionTokens: 500_000,
			},
		}},
	}}

	pricing := &model.PricingTable{Models: map[string]model.ModelPricing{
		"test-model": {Input: 1.0, Output: 2.0},
	}}
	sink := &mockSink{}
	orch := newOrchestrator(t, allowDMConfig(), b, nil,
		gateway.WithPricing(pricing), gateway.WithUsageSink(sink))

	rsp := &mockResponder{}
	gt.True(t, orch.HandleEvent(context.Background(), dmEvent("c1", "go"), rsp))

	replies := rsp.all()
	gt.A(t, replies).Length(1)
	gt.S(t, replies[0]).Contains("💲 $2.000000")

	recs := sink.all()
	gt.A(t, recs).Length(1)
	gt.Equal(t, recs[0].Rounds, 1)
	gt.Equal(t, recs[0].Model, "test-model")
	gt.True(t, recs[0].CostKnown)
	gt.Equal(t, recs[0].CostUSD, 2.0)
}

type mockSink struct {
	mu   sync.Mutex
	recs []*model.TurnUsage
}

func (m *mockSink) Put(ctx context.Context, rec *model.TurnUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *mockSink) all() []*model.TurnUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.TurnUsage{}, m.recs...)
}
