package transfer

type PinMediaSource struct {
	SourceType string `json:"source_type"`
	URL        string `json:"url"`
}

type PinRequest struct {
	BoardID     string         `json:"board_id"`
	MediaSource PinMediaSource `json:"media_source"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Link        string         `json:"link,omitempty"`
	AltText     string         `json:"alt_text,omitempty"`
}

type PinResponse struct {
	ID      string `json:"id"`
	BoardID string `json:"board_id"`
}
