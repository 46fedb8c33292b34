package transfer

type TiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

// OK reports whether the envelope carries TikTok's success code.
func (e TiktokError) OK() bool {
	return e.Code == "" || e.Code == "ok"
}

type VideoPostInfo struct {
	Title                 string `json:"title"`
	PrivacyLevel          string `json:"privacy_level"`
	DisableDuet           bool   `json:"disable_duet"`
	DisableComment        bool   `json:"disable_comment"`
	DisableStitch         bool   `json:"disable_stitch"`
	VideoCoverTimestampMs int    `json:"video_cover_timestamp_ms,omitempty"`
}

type VideoSourceInfo struct {
	Source          string `json:"source"`
	VideoSize       int64  `json:"video_size"`
	ChunkSize       int64  `json:"chunk_size"`
	TotalChunkCount int64  `json:"total_chunk_count"`
}

type VideoInitRequest struct {
	PostInfo   VideoPostInfo   `json:"post_info"`
	SourceInfo VideoSourceInfo `json:"source_info"`
}

type VideoInitResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
		UploadURL string `json:"upload_url"`
	} `json:"data"`
	Error TiktokError `json:"error"`
}

type PublishStatusRequest struct {
	PublishID string `json:"publish_id"`
}

type PublishStatusResponse struct {
	Data struct {
		Status          string   `json:"status"`
		FailReason      string   `json:"fail_reason"`
		ShareID         string   `json:"share_id"`
		PostIDs         []int64  `json:"publicaly_available_post_id"`
		UploadedBytes   int64    `json:"uploaded_bytes"`
		DownloadedBytes int64    `json:"downloaded_bytes"`
		ErrorCodes      []string `json:"error_codes,omitempty"`
	} `json:"data"`
	Error TiktokError `json:"error"`
}

type TiktokTokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	OpenID           string `json:"open_id"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	RefreshToken     string `json:"refresh_token"`
	Scope            string `json:"scope"`
	TokenType        string `json:"token_type"`
}
