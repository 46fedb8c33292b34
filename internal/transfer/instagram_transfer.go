package transfer

// GraphErrorResponse is the error envelope shared by the Instagram and Facebook graph APIs
// and, through its top level Message, by Pinterest.
type GraphErrorResponse struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		ErrorSubcode int    `json:"error_subcode"`
		IsTransient  bool   `json:"is_transient"`
		FbtraceID    string `json:"fbtrace_id"`
	} `json:"error"`
	Message string `json:"message"`
}

type InstagramContainerRequest struct {
	ImageURL       string   `json:"image_url,omitempty"`
	VideoURL       string   `json:"video_url,omitempty"`
	MediaType      string   `json:"media_type,omitempty"`
	Caption        string   `json:"caption,omitempty"`
	IsCarouselItem bool     `json:"is_carousel_item,omitempty"`
	Children       []string `json:"children,omitempty"`
	LocationID     string   `json:"location_id,omitempty"`
	AccessToken    string   `json:"access_token"`
}

type InstagramPublishRequest struct {
	CreationID  string `json:"creation_id"`
	AccessToken string `json:"access_token"`
}

type GraphIDResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}
