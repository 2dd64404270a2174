package model

// Meme is one item returned by the feed API.
type Meme struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Subreddit string `json:"subreddit"`
}

// Tweet is a post read back from the home timeline.
type Tweet struct {
	CreatedAt string `json:"created_at"`
	Text      string `json:"text"`
}

// --- v1.1 media/upload (simple upload) ---

// Media is the upload handle. MediaIDString is what statuses/update gets;
// MediaID can lose precision in some JSON consumers.
type Media struct {
	MediaID       uint64 `json:"media_id"`
	MediaIDString string `json:"media_id_string"`
}
