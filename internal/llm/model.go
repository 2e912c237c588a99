package llm

import (
	"context"
	"fmt"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/codechat/internal/config"
)

// ModelFactory builds the langchaingo model serving a request.
type ModelFactory func(ctx context.Context, req Request) (llms.Model, error)

// NewModel creates an LLM model for the request's provider.
func NewModel(httpClient *http.Client) ModelFactory {
	return func(ctx context.Context, req Request) (llms.Model, error) {
		var model llms.Model
		var err error

		switch req.Provider {
		case config.ProviderOllama:
			opts := []ollama.Option{
				ollama.WithModel(req.Model),
				ollama.WithServerURL(req.APIURL),
			}
			if httpClient != nil {
				opts = append(opts, ollama.WithHTTPClient(httpClient))
			}
			model, err = ollama.New(opts...)
			if err != nil {
				return nil, fmt.Errorf("create ollama model: %w", err)
			}

		case config.ProviderOpenAI:
			opts := []openai.Option{
				openai.WithToken(req.APIKey),
				openai.WithModel(req.Model),
				openai.WithBaseURL(req.APIURL),
			}
			if httpClient != nil {
				opts = append(opts, openai.WithHTTPClient(httpClient))
			}
			model, err = openai.New(opts...)
			if err != nil {
				return nil, fmt.Errorf("create openai model: %w", err)
			}

		case config.ProviderAnthropic:
			opts := []anthropic.Option{
				anthropic.WithToken(req.APIKey),
				anthropic.WithModel(req.Model),
			}
			if req.APIURL != "" {
				opts = append(opts, anthropic.WithBaseURL(req.APIURL))
			}
			if httpClient != nil {
				opts = append(opts, anthropic.WithHTTPClient(httpClient))
			}
			model, err = anthropic.New(opts...)
			if err != nil {
				return nil, fmt.Errorf("create anthropic model: %w", err)
			}

		case config.ProviderBedrock:
			var loadOpts []func(*awsconfig.LoadOptions) error
			if req.AWSRegion != "" {
				loadOpts = append(loadOpts, awsconfig.WithRegion(req.AWSRegion))
			}
			awsCfg, cfgErr := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
			if cfgErr != nil {
				return nil, fmt.Errorf("load aws config: %w", cfgErr)
			}
			model, err = bedrock.New(
				bedrock.WithModel(req.Model),
				bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			)
			if err != nil {
				return nil, fmt.Errorf("create bedrock model: %w", err)
			}

		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, req.Provider)
		}

		return model, nil
	}
}
