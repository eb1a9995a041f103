// Package summarizer generates short natural-language summaries for
// posting bodies. Implementations never return errors: when the backend
// is unavailable or the content is unusable they degrade to a
// human-readable placeholder so callers always get a displayable string.
package summarizer

import "context"

// Placeholder texts returned when no real summary can be produced.
const (
	PlaceholderDisabled = "요약 기능이 비활성화되어 있습니다."
	PlaceholderTooShort = "본문이 짧아 요약을 제공하지 않습니다. 원문을 확인해 주세요."
	PlaceholderFailed   = "요약 생성에 실패했습니다. 잠시 후 다시 시도해 주세요."
)

// MinContentLength is the body length below which summarization is
// skipped in favor of PlaceholderTooShort.
const MinContentLength = 50

// Summarizer turns a posting body (and optional image URLs) into a
// short summary string.
type Summarizer interface {
	Summarize(ctx context.Context, content string, images []string) string
}

// Disabled is a Summarizer that always reports the feature as off.
type Disabled struct{}

func (Disabled) Summarize(context.Context, string, []string) string {
	return PlaceholderDisabled
}
