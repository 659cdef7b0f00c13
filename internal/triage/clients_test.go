package triage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/rams-care-platform/pkg/logging"
)

type mockBedrockClient struct {
	response string
	err      error
	input    *bedrockruntime.ConverseInput
}

func (m *mockBedrockClient) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.input = in
	if m.err != nil {
		return nil, m.err
	}
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: m.response},
				},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(12),
			OutputTokens: aws.Int32(30),
			TotalTokens:  aws.Int32(42),
		},
	}, nil
}

func TestBedrockLLMClientComplete(t *testing.T) {
	mock := &mockBedrockClient{response: ` {"medications":[]} `}
	c := NewBedrockLLMClient(mock, "anthropic.claude-3-haiku")

	resp, err := c.Complete(context.Background(), LLMRequest{
		System: []string{"system prompt", "  "},
		Messages: []ChatMessage{
			{Role: ChatRoleSystem, Content: "extra rules"},
			{Role: ChatRoleUser, Content: "Diagnosis: migraine"},
		},
		MaxTokens:   256,
		Temperature: -1,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"medications":[]}`, resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, int32(42), resp.Usage.TotalTokens)

	require.NotNil(t, mock.input)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(mock.input.ModelId))
	assert.Len(t, mock.input.System, 2)
	require.Len(t, mock.input.Messages, 1)
	assert.Equal(t, brtypes.ConversationRoleUser, mock.input.Messages[0].Role)
	require.NotNil(t, mock.input.InferenceConfig)
	assert.Equal(t, int32(256), aws.ToInt32(mock.input.InferenceConfig.MaxTokens))
	assert.Nil(t, mock.input.InferenceConfig.Temperature)
}

func TestBedrockLLMClientRequestModelOverrides(t *testing.T) {
	mock := &mockBedrockClient{response: "ok"}
	c := NewBedrockLLMClient(mock, "default-model")

	_, err := c.Complete(context.Background(), LLMRequest{
		Model:       "override-model",
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
		Temperature: -1,
	})
	require.NoError(t, err)
	assert.Equal(t, "override-model", aws.ToString(mock.input.ModelId))
	assert.Nil(t, mock.input.InferenceConfig)
}

func TestBedrockLLMClientErrors(t *testing.T) {
	_, err := NewBedrockLLMClient(&mockBedrockClient{}, "").Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
	})
	assert.ErrorContains(t, err, "model id is required")

	_, err = NewBedrockLLMClient(&mockBedrockClient{}, "m").Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{Role: "tool", Content: "hi"}},
	})
	assert.ErrorContains(t, err, "unsupported role")

	boom := errors.New("throttled")
	_, err = NewBedrockLLMClient(&mockBedrockClient{err: boom}, "m").Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
	})
	assert.ErrorIs(t, err, boom)

	_, err = NewBedrockLLMClient(&mockBedrockClient{response: "   "}, "m").Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
	})
	assert.ErrorContains(t, err, "no text content")
}

func TestFallbackLLMClient(t *testing.T) {
	ctx := context.Background()
	req := LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}}

	primary := &stubLLMClient{response: LLMResponse{Text: "primary"}}
	fallback := &stubLLMClient{response: LLMResponse{Text: "fallback"}}
	resp, err := NewFallbackLLMClient(primary, fallback, logging.Discard()).Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Text)
	assert.Empty(t, fallback.requests)

	primary = &stubLLMClient{err: errors.New("primary down")}
	resp, err = NewFallbackLLMClient(primary, fallback, logging.Discard()).Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Text)

	fallbackErr := errors.New("fallback down")
	_, err = NewFallbackLLMClient(primary, &stubLLMClient{err: fallbackErr}, logging.Discard()).Complete(ctx, req)
	assert.ErrorIs(t, err, fallbackErr)

	var buf bytes.Buffer
	_, err = NewFallbackLLMClient(primary, nil, logging.NewWithWriter(&buf, "warn")).Complete(ctx, req)
	assert.EqualError(t, err, "primary down")
	assert.Contains(t, buf.String(), "attempting fallback")
}
