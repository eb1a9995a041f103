package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Shin-In-Gyu/DBtest/internal/logger"
)

// DefaultGeminiEndpoint is the Generative Language API base URL.
const DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

const (
	geminiTimeout      = 30 * time.Second
	geminiRetries      = 2
	geminiRetryWait    = 2 * time.Second
	geminiRetryMaxWait = 8 * time.Second
	maxPromptRunes     = 8000
	summaryDirective   = "다음 학교 공지사항을 3문장 이내로 한국어로 요약해 줘. " +
		"날짜, 장소, 신청 방법처럼 학생에게 중요한 정보를 우선해서 담아 줘.\n\n"
)

// GeminiSummarizer calls the Generative Language API. Any failure after
// the retry budget degrades to PlaceholderFailed.
type GeminiSummarizer struct {
	client   *resty.Client
	endpoint string
	model    string
	apiKey   string
	log      logger.Logger
}

// NewGeminiSummarizer builds a summarizer for the given model. An empty
// endpoint falls back to the public API base URL.
func NewGeminiSummarizer(apiKey, model, endpoint string, log logger.Logger) *GeminiSummarizer {
	if endpoint == "" {
		endpoint = DefaultGeminiEndpoint
	}
	client := resty.New().
		SetTimeout(geminiTimeout).
		SetRetryCount(geminiRetries).
		SetRetryWaitTime(geminiRetryWait).
		SetRetryMaxWaitTime(geminiRetryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500 || r.StatusCode() == 429
		})
	return &GeminiSummarizer{
		client:   client,
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		apiKey:   apiKey,
		log:      logger.Ensure(log),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Summarize returns a summary of content, or a placeholder when the body
// is too short or the API cannot be reached.
func (g *GeminiSummarizer) Summarize(ctx context.Context, content string, images []string) string {
	trimmed := strings.TrimSpace(content)
	if len([]rune(trimmed)) < MinContentLength {
		return PlaceholderTooShort
	}

	prompt := buildPrompt(trimmed, images)

	var parsed geminiResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(geminiRequest{
			Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		}).
		SetResult(&parsed).
		Post(fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, g.model))
	if err != nil {
		g.log.WarnObj("summary generation failed", "summary_error", err.Error())
		return PlaceholderFailed
	}
	if resp.StatusCode() != 200 {
		msg := resp.Status()
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		g.log.WarnObj("summary generation rejected", "summary_error", map[string]any{
			"status":  resp.StatusCode(),
			"message": msg,
			"model":   g.model,
		})
		return PlaceholderFailed
	}

	summary := extractText(parsed)
	if summary == "" {
		g.log.WarnObj("summary response empty", "model", g.model)
		return PlaceholderFailed
	}
	return summary
}

func buildPrompt(content string, images []string) string {
	var sb strings.Builder
	sb.WriteString(summaryDirective)
	runes := []rune(content)
	if len(runes) > maxPromptRunes {
		runes = runes[:maxPromptRunes]
	}
	sb.WriteString(string(runes))
	if len(images) > 0 {
		sb.WriteString("\n\n첨부 이미지 URL:\n")
		for _, img := range images {
			sb.WriteString(img)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func extractText(resp geminiResponse) string {
	for _, cand := range resp.Candidates {
		var sb strings.Builder
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			return text
		}
	}
	return ""
}
