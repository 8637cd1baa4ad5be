package search

type Video struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
	ChannelTitle string `json:"channel_title"`
	Description  string `json:"description"`
	PublishedAt  string `json:"published_at"`
	Link         string `json:"link"`
}
