package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Shin-In-Gyu/DBtest/internal/domain"
)

// boardAdapter parses the modern campus board family: listing rows carry an
// anchor with an HTML-escaped JSON blob in data-params that identifies the
// posting, and detail pages share the common markup handled by detail.go.
type boardAdapter struct {
	client HTTPClient
}

// NewBoardAdapter builds the adapter for the modern board family.
func NewBoardAdapter(client HTTPClient) Adapter {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &boardAdapter{client: client}
}

func (b *boardAdapter) Family() string { return FamilyBoard }

type boardLinkParams struct {
	ScrtWrtYn       bool   `json:"scrtWrtYn"`
	EncMenuSeq      string `json:"encMenuSeq"`
	EncMenuBoardSeq string `json:"encMenuBoardSeq"`
}

func (b *boardAdapter) ListCandidates(ctx context.Context, src Source) ([]domain.Candidate, error) {
	if strings.TrimSpace(src.ListURL) == "" {
		return nil, fmt.Errorf("source %q list_url is empty", src.ID)
	}
	if strings.TrimSpace(src.DetailURL) == "" {
		return nil, fmt.Errorf("source %q detail_url is empty", src.ID)
	}

	raw, err := fetchPage(ctx, b.client, src.ListURL, Headers(src))
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		// Malformed markup degrades to an empty listing, not an error.
		return nil, nil
	}

	pinLabel := PinLabel(src)
	seen := make(map[string]struct{})
	var out []domain.Candidate

	doc.Find("a.detailLink[data-params]").Each(func(_ int, a *goquery.Selection) {
		rawParams, _ := a.Attr("data-params")
		params, ok := decodeBoardParams(rawParams)
		if !ok {
			return
		}

		link := fmt.Sprintf("%s?scrtWrtYn=%t&encMenuSeq=%s&encMenuBoardSeq=%s",
			src.DetailURL, params.ScrtWrtYn, params.EncMenuSeq, params.EncMenuBoardSeq)
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		title := squashSpaces(a.Text())
		if title == "" {
			title = strings.TrimSpace(a.AttrOr("title", ""))
		}

		out = append(out, domain.Candidate{
			Title:  title,
			Link:   link,
			Pinned: rowIsPinned(a, pinLabel),
		})
	})

	return out, nil
}

// decodeBoardParams unescapes and decodes the data-params JSON. Some boards
// emit single-quoted pseudo-JSON; retry after swapping quote characters.
func decodeBoardParams(raw string) (boardLinkParams, bool) {
	raw = strings.TrimSpace(html.UnescapeString(raw))
	if raw == "" {
		return boardLinkParams{}, false
	}

	var params boardLinkParams
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		if err := json.Unmarshal([]byte(strings.ReplaceAll(raw, "'", `"`)), &params); err != nil {
			return boardLinkParams{}, false
		}
	}

	if params.EncMenuSeq == "" || params.EncMenuBoardSeq == "" {
		return boardLinkParams{}, false
	}
	return params, true
}

// rowIsPinned reports whether the candidate's listing row carries the
// highlighted-slot marker: a leading cell holding the pin label, a notice
// row class, or an explicit must-read element.
func rowIsPinned(a *goquery.Selection, pinLabel string) bool {
	row := a.Closest("tr")
	if row.Length() == 0 {
		row = a.Closest("li")
	}
	if row.Length() == 0 {
		return false
	}

	if row.HasClass("notice") || row.Find(".must_read").Length() > 0 {
		return true
	}

	lead := row.Find("td").First()
	if lead.Length() == 0 {
		return false
	}
	return squashSpaces(lead.Text()) == pinLabel
}

func (b *boardAdapter) ParseDetail(ctx context.Context, src Source, url string) (*domain.NoticeDetail, error) {
	raw, err := fetchPage(ctx, b.client, url, Headers(src))
	if err != nil {
		return nil, err
	}
	return parseDetailPage(raw, url), nil
}
