package models

// MediaJob is the handle of an asynchronous avatar-render job. The render
// service works on it remotely; the pipeline polls until the job resolves.
type MediaJob struct {
	ID           string `json:"id" validate:"required"`
	AudioAssetID string `json:"audio_asset_id,omitempty"`
}

// Media is the finished rendered video.
type Media struct {
	JobID      string `json:"job_id"`
	URL        string `json:"url"`
	AudioBytes int    `json:"audio_bytes,omitempty"`
}

// Publication records where the finished video ended up.
type Publication struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
}
