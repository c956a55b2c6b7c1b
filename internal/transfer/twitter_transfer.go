package transfer

type TwitterMediaResponse struct {
	MediaID          int64                    `json:"media_id"`
	MediaIDString    string                   `json:"media_id_string"`
	Size             int64                    `json:"size,omitempty"`
	ExpiresAfterSecs int                      `json:"expires_after_secs,omitempty"`
	ProcessingInfo   *TwitterProcessingInfo   `json:"processing_info,omitempty"`
	Errors           []TwitterAPIErrorMessage `json:"errors,omitempty"`
}

type TwitterProcessingInfo struct {
	State           string                `json:"state"` // pending, in_progress, succeeded, failed
	CheckAfterSecs  int                   `json:"check_after_secs,omitempty"`
	ProgressPercent int                   `json:"progress_percent,omitempty"`
	Error           *TwitterProcessingErr `json:"error,omitempty"`
}

type TwitterProcessingErr struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type TwitterAPIErrorMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	TwitterProcessingPending    = "pending"
	TwitterProcessingInProgress = "in_progress"
	TwitterProcessingSucceeded  = "succeeded"
	TwitterProcessingFailed     = "failed"
)
