package types

type GenerateRequest struct {
	Prompt    string      `json:"prompt"`
	Steps     FlexibleInt `json:"steps"`
	NumImages FlexibleInt `json:"numImages"`
	// ClientID routes worker progress to an open /ws connection.
	ClientID string `json:"clientId,omitempty"`
}

type GenerateResponse struct {
	ImageUrls []string `json:"imageUrls"`
	Warning   string   `json:"warning,omitempty"`
}

type TtsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type HealthResponse struct {
	Status    int   `json:"status"`
	TimeStamp int64 `json:"timestamp"`
}
