package transfer

type FacebookPhotoRequest struct {
	Message     string `json:"message,omitempty"`
	URL         string `json:"url"`
	AccessToken string `json:"access_token"`
}

type FacebookVideoRequest struct {
	Description string `json:"description,omitempty"`
	FileURL     string `json:"file_url"`
	AccessToken string `json:"access_token"`
}

type FacebookFeedRequest struct {
	Message     string `json:"message"`
	Link        string `json:"link,omitempty"`
	AccessToken string `json:"access_token"`
}
