package models

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/kris-hansen/redbiomctl/utils/retry"
)

// BedrockProvider calls models hosted on AWS Bedrock through the Converse API.
// Credentials come from the standard AWS chain, not from an API key.
type BedrockProvider struct {
	region  string
	config  ModelConfig
	verbose bool
	mu      sync.Mutex
}

// NewBedrockProvider creates a new Bedrock provider instance
func NewBedrockProvider() *BedrockProvider {
	return &BedrockProvider{config: DefaultModelConfig}
}

// Name returns the provider name
func (b *BedrockProvider) Name() string {
	return "bedrock"
}

func (b *BedrockProvider) debugf(format string, args ...interface{}) {
	if b.verbose {
		b.mu.Lock()
		defer b.mu.Unlock()
		log.Printf("[DEBUG][Bedrock] "+format+"\n", args...)
	}
}

// SupportsModel checks for Bedrock vendor-prefixed model ids
func (b *BedrockProvider) SupportsModel(modelName string) bool {
	return GetRegistry().ValidateModel(b.Name(), modelName)
}

// Configure is a no-op for Bedrock; the AWS credential chain is used
func (b *BedrockProvider) Configure(string) error {
	return nil
}

// SetRegion selects the AWS region
func (b *BedrockProvider) SetRegion(region string) {
	b.region = region
}

// SetVerbose enables or disables verbose mode
func (b *BedrockProvider) SetVerbose(verbose bool) {
	b.verbose = verbose
}

func toBedrockMessages(messages []Message) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		role := types.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}
	return out
}

// Complete sends the conversation through Bedrock Converse
func (b *BedrockProvider) Complete(ctx context.Context, modelName string, conv Conversation) (string, error) {
	if err := conv.validate(); err != nil {
		return "", err
	}
	if !b.SupportsModel(modelName) {
		return "", fmt.Errorf("invalid Bedrock model: %s", modelName)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if b.region != "" {
		opts = append(opts, awsconfig.WithRegion(b.region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	client := bedrockruntime.NewFromConfig(awsCfg)

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelName),
		Messages: toBedrockMessages(conv.Messages),
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(b.config.Temperature)),
			MaxTokens:   aws.Int32(int32(b.config.MaxTokens)),
		},
	}
	if conv.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: conv.System}}
	}

	b.debugf("Sending %d messages to model %s", len(conv.Messages), modelName)
	return retry.WithRetry(ctx,
		func(ctx context.Context) (string, error) {
			out, err := client.Converse(ctx, input)
			if err != nil {
				return "", fmt.Errorf("Bedrock API error: %w", err)
			}
			msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
			if !ok {
				return "", fmt.Errorf("unexpected Bedrock output type %T", out.Output)
			}
			var sb strings.Builder
			for _, block := range msg.Value.Content {
				if t, ok := block.(*types.ContentBlockMemberText); ok {
					sb.WriteString(t.Value)
				}
			}
			return sb.String(), nil
		},
		isThrottled,
		retry.DefaultRetryConfig,
	)
}

func isThrottled(err error) bool {
	return retry.Is429Error(err) || strings.Contains(err.Error(), "ThrottlingException")
}
