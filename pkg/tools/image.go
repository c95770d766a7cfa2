package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"valorbot/pkg/media"
)

// ImageMarker prefixes the generate_image result: marker|path|caption.
const ImageMarker = "TELEGRAM_IMAGE_GENERATED"

const (
	DefaultImageModel = "dall-e-3"
	maxImageBytes     = 20 * 1024 * 1024
	maxCaptionRunes   = 200
)

type generateImageInput struct {
	Prompt  string `json:"prompt" description:"Detailed description of the image to create."`
	Caption string `json:"caption,omitempty" description:"Short caption to show under the image."`
}

// GeneratedImage is raw image bytes plus what the model actually drew.
type GeneratedImage struct {
	Data          []byte
	Format        string
	RevisedPrompt string
}

// ImageGenerator turns a prompt into image bytes.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (GeneratedImage, error)
}

// OpenAIImagesConfig configures the OpenAI images endpoint.
type OpenAIImagesConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// OpenAIImages generates images through the OpenAI images API.
type OpenAIImages struct {
	client     osdk.Client
	model      string
	httpClient *http.Client
}

// NewOpenAIImages returns nil when no API key is configured.
func NewOpenAIImages(cfg OpenAIImagesConfig) *OpenAIImages {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultImageModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Minute}
	}

	return &OpenAIImages{client: osdk.NewClient(opts...), model: model, httpClient: httpClient}
}

func (g *OpenAIImages) GenerateImage(ctx context.Context, prompt string) (GeneratedImage, error) {
	params := osdk.ImageGenerateParams{
		Prompt: prompt,
		Model:  osdk.ImageModel(g.model),
		N:      osdk.Int(1),
		Size:   osdk.ImageGenerateParamsSize1024x1024,
	}
	// gpt-image models always return base64 and reject response_format.
	if strings.HasPrefix(g.model, "dall-e") {
		params.ResponseFormat = osdk.ImageGenerateParamsResponseFormatB64JSON
	}

	response, err := g.client.Images.Generate(ctx, params)
	if err != nil {
		return GeneratedImage{}, newError(ErrorUpstream, "image generation failed: %v", err)
	}
	if response == nil || len(response.Data) == 0 {
		return GeneratedImage{}, newError(ErrorUpstream, "image generation returned no images")
	}

	image := response.Data[0]
	format := string(response.OutputFormat)
	if format == "" {
		format = "png"
	}

	if image.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(image.B64JSON)
		if err != nil {
			return GeneratedImage{}, newError(ErrorUpstream, "decode image: %v", err)
		}
		return GeneratedImage{Data: data, Format: format, RevisedPrompt: image.RevisedPrompt}, nil
	}
	if image.URL != "" {
		data, err := g.download(ctx, image.URL)
		if err != nil {
			return GeneratedImage{}, err
		}
		return GeneratedImage{Data: data, Format: format, RevisedPrompt: image.RevisedPrompt}, nil
	}

	return GeneratedImage{}, newError(ErrorUpstream, "image generation returned neither data nor url")
}

func (g *OpenAIImages) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, newError(ErrorUpstream, "build image download: %v", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, newError(ErrorUpstream, "download image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newError(ErrorUpstream, "download image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, newError(ErrorUpstream, "read image: %v", err)
	}
	return data, nil
}

func generateImage(generator ImageGenerator, dir *media.Dir) func(context.Context, generateImageInput) (string, error) {
	return func(ctx context.Context, input generateImageInput) (string, error) {
		prompt := strings.TrimSpace(input.Prompt)
		if prompt == "" {
			return "", newError(ErrorInvalidInput, "prompt must not be empty")
		}
		if generator == nil || dir == nil {
			return "", newError(ErrorNotConfigured, "image generation is not configured")
		}

		image, err := generator.GenerateImage(ctx, prompt)
		if err != nil {
			return "", err
		}

		path, err := dir.Save(prompt, image.Format, image.Data)
		if err != nil {
			return "", err
		}

		caption := strings.TrimSpace(input.Caption)
		if caption == "" {
			caption = prompt
		}
		return FormatImageMarker(path, caption), nil
	}
}

// FormatImageMarker renders the sentinel string for a generated image.
// Pipes in the caption are replaced so the three fields stay separable.
func FormatImageMarker(path string, caption string) string {
	caption = strings.ReplaceAll(collapse(caption), "|", "/")
	caption = truncateRunes(caption, maxCaptionRunes)
	return fmt.Sprintf("%s|%s|%s", ImageMarker, path, caption)
}
