package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	ecomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	echo := ProviderFunc(func(ctx context.Context, messages []Message, opts Options) (*Response, error) {
		return &Response{Content: messages[0].Content, Model: opts.Model}, nil
	})
	reg.Register("echo", echo)

	p, err := reg.Get("echo")
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, Options{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, "m", resp.Model)
}

func TestRegistry_UnknownProvider(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderNotFound))
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()
	noop := ProviderFunc(func(context.Context, []Message, Options) (*Response, error) { return &Response{}, nil })
	reg.Register("openai", noop)
	reg.Register("anthropic", noop)
	assert.Equal(t, []string{"anthropic", "openai"}, reg.Names())
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	reg := NewRegistry()
	noop := ProviderFunc(func(context.Context, []Message, Options) (*Response, error) { return &Response{}, nil })
	for i := 0; i < 5; i++ {
		reg.Register(fmt.Sprintf("p%d", i), noop)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Get(fmt.Sprintf("p%d", i%5))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}

func TestParams(t *testing.T) {
	params := map[string]any{
		"temperature": 0.2,
		"max_tokens":  json.Number("256"),
		"stop":        []any{"END", 3},
	}

	temp, ok := Float(params, ParamTemperature)
	assert.True(t, ok)
	assert.InDelta(t, 0.2, temp, 1e-9)

	maxTokens, ok := Int(params, ParamMaxTokens)
	assert.True(t, ok)
	assert.Equal(t, 256, maxTokens)

	_, ok = Float(params, ParamTopP)
	assert.False(t, ok)

	assert.Equal(t, []string{"END"}, Strings(params, ParamStop))
}

func TestToSchemaMessages(t *testing.T) {
	out := toSchemaMessages([]Message{
		{Role: RoleSystem, Content: "s"},
		{Role: RoleUser, Content: "u"},
		{Role: RoleAssistant, Content: "a"},
	})
	require.Len(t, out, 3)
	assert.Equal(t, schema.System, out[0].Role)
	assert.Equal(t, schema.User, out[1].Role)
	assert.Equal(t, schema.Assistant, out[2].Role)
}

func TestToGenAIContents_SystemBecomesInstruction(t *testing.T) {
	system, contents := toGenAIContents([]Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleUser, Content: "question"},
	})
	require.NotNil(t, system)
	assert.Len(t, contents, 1)
}

func TestToAnthropicParams(t *testing.T) {
	params := toAnthropicParams("claude", []Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleUser, Content: "question"},
	}, map[string]any{"max_tokens": 64})

	assert.Equal(t, int64(64), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "rules", params.System[0].Text)
	assert.Len(t, params.Messages, 1)
}

type fakeChatModel struct {
	gotModel string
	reply    *schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...ecomodel.Option) (*schema.Message, error) {
	o := ecomodel.GetCommonOptions(&ecomodel.Options{}, opts...)
	if o.Model != nil {
		f.gotModel = *o.Model
	}
	return f.reply, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...ecomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestChatModelProvider_Generate(t *testing.T) {
	fake := &fakeChatModel{reply: &schema.Message{
		Role:    schema.Assistant,
		Content: "ok",
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: "stop",
			Usage:        &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}}
	p := NewChatModelProviderFrom("openai", "gpt-3.5-turbo", fake)

	resp, err := p.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, Options{Model: "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", fake.gotModel)
	assert.Equal(t, "ok", resp.Content)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.Equal(t, "stop", resp.Metadata["finish_reason"])
}
