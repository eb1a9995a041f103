package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Shin-In-Gyu/DBtest/pkg/httpclient"
)

// ConfigString returns the trimmed string value for key from source.Config or a fallback.
func ConfigString(src Source, key, fallback string) string {
	if src.Config != nil {
		if raw, ok := src.Config[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}

const (
	ConfigUserAgentKey      = "user_agent"
	ConfigAcceptKey         = "accept"
	ConfigAcceptLanguageKey = "accept_language"
	ConfigPinLabelKey       = "pin_label"
)

// Campus boards flag highlighted rows with this label unless configured otherwise.
const defaultPinLabel = "공지"

// Headers builds the common request headers from a source config (skips empty values).
func Headers(src Source) map[string]string {
	headers := make(map[string]string, 3)

	if v := ConfigString(src, ConfigUserAgentKey, ""); v != "" {
		headers["User-Agent"] = v
	}
	if v := ConfigString(src, ConfigAcceptKey, ""); v != "" {
		headers["Accept"] = v
	}
	if v := ConfigString(src, ConfigAcceptLanguageKey, ""); v != "" {
		headers["Accept-Language"] = v
	}

	return headers
}

// PinLabel returns the listing marker that flags a pinned row.
func PinLabel(src Source) string {
	return ConfigString(src, ConfigPinLabelKey, defaultPinLabel)
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// fetchPage downloads one page and enforces a 200 response.
func fetchPage(ctx context.Context, client httpclient.Client, url string, headers map[string]string) ([]byte, error) {
	resp, err := client.Get(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d body: %s", url, resp.StatusCode(), responseSnippet(body))
	}

	return body, nil
}
