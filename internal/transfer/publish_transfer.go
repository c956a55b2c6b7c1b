package transfer

// PublishEnvelope is the JSON body POSTed to a platform's webhook relay.
type PublishEnvelope struct {
	ID        string `json:"id"`
	ImageURL  string `json:"imageUrl"`
	Platform  string `json:"platform"`
	Content   string `json:"content"`
	VideoURL  string `json:"videoUrl"`
	ShowVideo bool   `json:"showVideo"`
}
