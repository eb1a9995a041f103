package sources

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Shin-In-Gyu/DBtest/internal/domain"
)

const maxHTMLBodyBytes = 1 << 20 // 1 MiB

var (
	// Matches "2024.1.1", "2024 . 1 . 1", "2024-01-01" and "2024/1/1".
	datePattern = regexp.MustCompile(`(\d{4})\s*[.\-/]\s*(\d{1,2})\s*[.\-/]\s*(\d{1,2})`)
	// Matches "조회 123", "조회수: 123".
	viewsPattern = regexp.MustCompile(`조회(?:수)?\s*:?\s*(\d+)`)
)

// parseDetailPage extracts a normalized posting from detail-page markup.
// Returns nil when the markup carries none of the expected structure.
func parseDetailPage(body []byte, pageURL string) *domain.NoticeDetail {
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	detail := &domain.NoticeDetail{}

	title := doc.Find(".tblw_subj").First()
	if title.Length() == 0 {
		title = doc.Find(".subject").First()
	}
	if title.Length() == 0 {
		title = doc.Find("#contentTit").First()
	}
	detail.Title = strings.TrimSpace(title.Text())

	if meta := doc.Find(".tblw_date").First(); meta.Length() > 0 {
		fullText := squashSpaces(meta.Text())

		if m := viewsPattern.FindStringSubmatch(fullText); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				detail.UnivViews = n
			}
		}
		if m := datePattern.FindStringSubmatch(fullText); m != nil {
			year, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			day, _ := strconv.Atoi(m[3])
			if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
				d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
				detail.PublishDate = &d
			}
		}
	}

	doc.Find(".wri_area.file a.link_file").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		detail.Files = append(detail.Files, domain.Attachment{
			Name: strings.TrimSpace(a.Text()),
			URL:  resolveURL(base, href),
		})
	})

	if content := doc.Find(".tbl_view").First(); content.Length() > 0 {
		content.Find("img").Each(func(_ int, img *goquery.Selection) {
			if src, ok := img.Attr("src"); ok && strings.TrimSpace(src) != "" {
				detail.Images = append(detail.Images, resolveURL(base, src))
			}
		})

		paragraphs := content.Find("p")
		if paragraphs.Length() > 0 {
			paragraphs.Each(func(_ int, p *goquery.Selection) {
				if text := strings.TrimSpace(p.Text()); text != "" {
					detail.Paragraphs = append(detail.Paragraphs, text)
				}
			})
		} else if text := strings.TrimSpace(content.Text()); text != "" {
			detail.Paragraphs = []string{text}
		}
	}

	if detail.Title == "" && len(detail.Paragraphs) == 0 && len(detail.Files) == 0 {
		return nil
	}
	return detail
}

func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

func squashSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
