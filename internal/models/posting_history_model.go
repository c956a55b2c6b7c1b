package models

import "time"

type PostingHistory struct {
	ID           string    `db:"id" json:"id"`
	AccountID    string    `db:"account_id" json:"account_id"`
	PostID       string    `db:"post_id" json:"post_id"`
	Platform     string    `db:"platform" json:"platform"`
	Success      bool      `db:"success" json:"success"`
	Response     string    `db:"response" json:"response,omitempty"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
