package models

import (
	"strings"
	"time"
)

type Post struct {
	ID                 string     `db:"id" json:"id"`
	AccountID          string     `db:"account_id" json:"account_id"`
	Platforms          []string   `db:"platforms" json:"platforms"`
	DatePost           time.Time  `db:"date_post" json:"date_post"`
	TimePost           string     `db:"time_post" json:"time_post"` // "00".."23", UTC
	Status             string     `db:"status" json:"status"`       // pending, scheduled, publishing, published, failed
	Image              PostImage  `json:"image"`
	Text               PostText   `json:"text"`
	PublishedAt        *time.Time `db:"published_at" json:"published_at,omitempty"`
	Attempts           int        `db:"attempts" json:"attempts"`
	NextAttemptAt      *time.Time `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	PublishedPlatforms []string   `db:"published_platforms" json:"published_platforms"`
	ClaimedAt          *time.Time `db:"claimed_at" json:"-"`
	LastError          string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

type PostImage struct {
	Template  string `db:"image_template" json:"template"`
	Video     string `db:"image_video" json:"video,omitempty"`
	ShowVideo bool   `db:"show_video" json:"show_video"`
}

// PostText carries the body plus the title/subtitle used for template rendering only.
type PostText struct {
	Title    string `db:"text_title" json:"title"`
	Subtitle string `db:"text_subtitle" json:"subtitle"`
	Post     string `db:"text_post" json:"post"`
}

const (
	PostStatusPending    = "pending"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)

// HasPublished reports whether platform was already delivered for this post.
func (p *Post) HasPublished(platform string) bool {
	for _, done := range p.PublishedPlatforms {
		if strings.EqualFold(done, platform) {
			return true
		}
	}
	return false
}

// PostPatch is a partial update; nil fields are left untouched.
type PostPatch struct {
	Status        *string
	PublishedAt   *time.Time
	Attempts      *int
	NextAttemptAt *time.Time
	LastError     *string
	ClearClaim    bool
	ClearNextAt   bool
}
