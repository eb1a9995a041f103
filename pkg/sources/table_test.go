package sources

import (
	"context"
	"testing"
)

const tableListHTML = `
<html><body>
<table><tbody>
<tr>
  <td class="num"><img src="/img/notice.gif" alt=""></td>
  <td class="subject"><a href="/bbs/view.php?wr_id=9">Pinned by marker image</a></td>
</tr>
<tr>
  <td class="num">공지</td>
  <td class="subject"><a href="/bbs/view.php?wr_id=8">Pinned by label</a></td>
</tr>
<tr>
  <td class="num">42</td>
  <td class="title"><a href="view.php?wr_id=7">  Regular    row  </a></td>
</tr>
<tr>
  <td class="num">41</td>
  <td class="subject">no anchor here</td>
</tr>
</tbody></table>
</body></html>`

func tableTestSource() Source {
	return Source{
		ID:       "t1",
		Name:     "Dept",
		Category: "컴퓨터학부",
		Family:   FamilyTable,
		ListURL:  "https://dept.example/bbs/board.php?bo_table=n",
	}
}

func TestTableAdapterListsCandidates(t *testing.T) {
	src := tableTestSource()
	client := &fakeClient{pages: map[string]string{src.ListURL: tableListHTML}}

	got, err := NewTableAdapter(client).ListCandidates(context.Background(), src)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d: %+v", len(got), got)
	}

	if !got[0].Pinned {
		t.Fatalf("expected marker-image row pinned, got %+v", got[0])
	}
	if got[0].Link != "https://dept.example/bbs/view.php?wr_id=9" {
		t.Fatalf("absolute href not resolved: %q", got[0].Link)
	}

	if !got[1].Pinned {
		t.Fatalf("expected label row pinned, got %+v", got[1])
	}

	if got[2].Pinned {
		t.Fatalf("numbered row must not be pinned: %+v", got[2])
	}
	if got[2].Title != "Regular row" {
		t.Fatalf("expected squashed title, got %q", got[2].Title)
	}
	if got[2].Link != "https://dept.example/bbs/view.php?wr_id=7" {
		t.Fatalf("relative href not resolved against listing URL: %q", got[2].Link)
	}
}

func TestTableAdapterHonorsCustomPinLabel(t *testing.T) {
	html := `<table><tbody><tr>
		<td class="num">NOTICE</td>
		<td class="subject"><a href="/v?id=1">n</a></td>
	</tr></tbody></table>`
	src := tableTestSource()
	src.Config = map[string]any{ConfigPinLabelKey: "NOTICE"}
	client := &fakeClient{pages: map[string]string{src.ListURL: html}}

	got, err := NewTableAdapter(client).ListCandidates(context.Background(), src)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(got) != 1 || !got[0].Pinned {
		t.Fatalf("expected custom pin label honored, got %+v", got)
	}
}

func TestTableAdapterEmptyListingIsNotAnError(t *testing.T) {
	src := tableTestSource()
	client := &fakeClient{pages: map[string]string{src.ListURL: "<html><body><p>nothing</p></body></html>"}}

	got, err := NewTableAdapter(client).ListCandidates(context.Background(), src)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}
