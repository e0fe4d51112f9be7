package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/healthbridge/healthbridge/internal/gesture"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// ErrMissingAPIKey is returned when no Gemini API key is configured.
var ErrMissingAPIKey = errors.New("gemini api key not configured")

const systemPrompt = `You are an American Sign Language interpreter in a clinical setting.
You receive still frames sampled in order from a single sign or short signed phrase.
Reply with only the English meaning, as briefly as possible, with no commentary.
If the frames do not show a recognisable sign, reply with exactly [unclear].`

// GeminiConfig configures the Gemini vision translator.
type GeminiConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	MaxOutputTokens int32   `mapstructure:"max_output_tokens"`
	Temperature     float32 `mapstructure:"temperature"`
}

// GeminiTranslator translates frames with a Gemini multimodal model.
type GeminiTranslator struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiTranslator creates a translator backed by the Gemini API.
func NewGeminiTranslator(ctx context.Context, cfg GeminiConfig) (*GeminiTranslator, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 256
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	log.Info().Str("model", cfg.Model).Msg("Gemini translator initialized")
	return &GeminiTranslator{client: client, cfg: cfg}, nil
}

// Translate sends frames as inline JPEG parts followed by the prompt.
func (g *GeminiTranslator) Translate(ctx context.Context, frames []gesture.HandFrame) (Translation, error) {
	parts := make([]*genai.Part, 0, len(frames)+1)
	for i := range frames {
		mimeType, data, err := DecodeImage(frames[i].ImageData)
		if err != nil {
			log.Warn().Err(err).Int("frame", i).Msg("Skipping undecodable frame")
			continue
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: mimeType,
				Data:     data,
			},
		})
	}
	if len(parts) == 0 {
		return Translation{}, ErrNoFrames
	}

	parts = append(parts, &genai.Part{Text: buildPrompt(len(parts))})
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		MaxOutputTokens: g.cfg.MaxOutputTokens,
		Temperature:     genai.Ptr(g.cfg.Temperature),
	}

	log.Debug().
		Str("model", g.cfg.Model).
		Int("image_parts", len(parts)-1).
		Msg("Starting Gemini API call for sign translation")

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, config)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().Err(err).Dur("duration", elapsed).Msg("Gemini translation failed")
		return Translation{}, fmt.Errorf("generate content: %w", err)
	}

	text := ""
	if resp != nil {
		text = cleanResponse(resp.Text())
	}
	if text == "" {
		log.Warn().Dur("duration", elapsed).Msg("Received empty response from Gemini")
		return Translation{}, ErrEmptyResponse
	}

	log.Debug().
		Str("translation", text).
		Dur("duration", elapsed).
		Msg("Gemini translation received")

	return Translation{Text: text, LatencyMs: elapsed.Milliseconds()}, nil
}

func buildPrompt(images int) string {
	return fmt.Sprintf("These %d frames were captured in order while one sign was performed. "+
		"What does the sign mean in English?", images)
}

func cleanResponse(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	return strings.TrimSpace(s)
}
