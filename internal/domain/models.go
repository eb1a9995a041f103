package domain

import "time"

// Domain contains the core models shared across the harvester.

// Candidate is a listing-page entry that has not been fetched in detail yet.
type Candidate struct {
	Title  string
	Link   string
	Pinned bool
}

// Attachment is a downloadable file referenced by a posting.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// NoticeDetail is the fully parsed representation of one posting's detail
// page, ready to be turned into a Posting.
type NoticeDetail struct {
	Title       string
	PublishDate *time.Time
	Paragraphs  []string
	Images      []string
	Files       []Attachment
	UnivViews   int
}

// Posting is the durable record of one harvested notice. The pair
// (Category, Link) is unique: the same URL may appear under two categories
// but never twice under one.
type Posting struct {
	ID          uint64       `json:"id"`
	Title       string       `json:"title"`
	Link        string       `json:"link"`
	Category    string       `json:"category"`
	PublishDate *time.Time   `json:"publish_date,omitempty"`
	Content     string       `json:"content"`
	Images      []string     `json:"images,omitempty"`
	Files       []Attachment `json:"files,omitempty"`
	UnivViews   int          `json:"univ_views"`
	AppViews    int          `json:"app_views"`
	Pinned      bool         `json:"pinned"`
	PinnedAt    *time.Time   `json:"pinned_at,omitempty"`
	Notified    bool         `json:"notified"`
	Summary     string       `json:"summary,omitempty"`
	CrawledAt   time.Time    `json:"crawled_at"`
}

// Device is a push-registered client installation.
type Device struct {
	ID        uint64    `json:"id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationRecord is the durable guard against re-notifying a device for
// a posting it has already been told about.
type NotificationRecord struct {
	DeviceID  uint64    `json:"device_id"`
	PostingID uint64    `json:"posting_id"`
	SentAt    time.Time `json:"sent_at"`
}
