package vision

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/joseph-ayodele/timetable-extractor/internal/common"
	"github.com/joseph-ayodele/timetable-extractor/internal/llm"
)

// ProviderBedrock is the chain name of the AWS Bedrock variant.
const ProviderBedrock = "bedrock"

type converseAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider transcribes through the Bedrock Converse API.
type BedrockProvider struct {
	client    converseAPI
	modelID   string
	maxTokens int32
}

// NewBedrockClient loads the default AWS credential chain for region.
func NewBedrockClient(ctx context.Context, region string) (*bedrockruntime.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

// NewBedrockProvider wraps a Converse client. A nil client yields an unavailable provider.
func NewBedrockProvider(client converseAPI, modelID string, maxTokens int) *BedrockProvider {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &BedrockProvider{client: client, modelID: modelID, maxTokens: int32(maxTokens)}
}

func (p *BedrockProvider) Name() string { return ProviderBedrock }

func (p *BedrockProvider) Available() bool { return p.client != nil && p.modelID != "" }

func (p *BedrockProvider) Transcribe(ctx context.Context, page Page) (Result, error) {
	format, ok := bedrockFormat(page.MIME)
	if !ok || !cloudReady(page) {
		return Result{}, fmt.Errorf("%w: cannot send %q", common.ErrProviderUnavailable, page.MIME)
	}
	out, err := p.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(p.modelID),
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: Prompt(page)},
				&types.ContentBlockMemberImage{Value: types.ImageBlock{
					Format: format,
					Source: &types.ImageSourceMemberBytes{Value: page.Data},
				}},
			},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(p.maxTokens),
			Temperature: aws.Float32(0),
		},
	})
	if err != nil {
		return Result{}, llm.WrapFatalError(fmt.Errorf("bedrock converse: %w", err))
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return Result{}, fmt.Errorf("bedrock: unexpected output type %T", out.Output)
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(t.Value)
		}
	}
	return Result{
		Text:       strings.TrimSpace(b.String()),
		Confidence: ConfidenceBedrock,
		Provider:   ProviderBedrock,
	}, nil
}

func bedrockFormat(mime string) (types.ImageFormat, bool) {
	switch mime {
	case "image/png":
		return types.ImageFormatPng, true
	case "image/jpeg":
		return types.ImageFormatJpeg, true
	}
	return "", false
}
