package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Shin-In-Gyu/DBtest/internal/domain"
)

// tableAdapter parses the legacy table board family: a plain table whose
// rows link directly to the detail page via href, with the pin marker in
// the number cell.
type tableAdapter struct {
	client HTTPClient
}

// NewTableAdapter builds the adapter for the legacy table family.
func NewTableAdapter(client HTTPClient) Adapter {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &tableAdapter{client: client}
}

func (t *tableAdapter) Family() string { return FamilyTable }

func (t *tableAdapter) ListCandidates(ctx context.Context, src Source) ([]domain.Candidate, error) {
	if strings.TrimSpace(src.ListURL) == "" {
		return nil, fmt.Errorf("source %q list_url is empty", src.ID)
	}

	raw, err := fetchPage(ctx, t.client, src.ListURL, Headers(src))
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, nil
	}

	base, err := url.Parse(src.ListURL)
	if err != nil {
		base = nil
	}

	pinLabel := PinLabel(src)
	seen := make(map[string]struct{})
	var out []domain.Candidate

	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		a := row.Find("td.subject a, td.title a").First()
		if a.Length() == 0 {
			return
		}
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		link := resolveURL(base, href)
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		pinned := false
		if num := row.Find("td.num").First(); num.Length() > 0 {
			text := squashSpaces(num.Text())
			pinned = text == pinLabel || num.Find("img").Length() > 0 && text == ""
		}

		out = append(out, domain.Candidate{
			Title:  squashSpaces(a.Text()),
			Link:   link,
			Pinned: pinned,
		})
	})

	return out, nil
}

func (t *tableAdapter) ParseDetail(ctx context.Context, src Source, url string) (*domain.NoticeDetail, error) {
	raw, err := fetchPage(ctx, t.client, url, Headers(src))
	if err != nil {
		return nil, err
	}
	return parseDetailPage(raw, url), nil
}
