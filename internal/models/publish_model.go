package models

// PublishResult is one platform's outcome for one dispatch attempt. It is never persisted.
type PublishResult struct {
	Platform string `json:"platform"`
	Success  bool   `json:"success"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

type PlatformError struct {
	Platform string `json:"platform"`
	Error    string `json:"error"`
}

type DispatchResult struct {
	Success bool            `json:"success"`
	Results []PublishResult `json:"results"`
	Errors  []PlatformError `json:"errors"`
}
