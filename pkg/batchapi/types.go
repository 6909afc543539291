package batchapi

import "time"

// TokenRequest mirrors the OAuth2 password-grant form fields accepted by
// POST /token. GrantType is tolerated but ignored.
type TokenRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	GrantType string `json:"grant_type,omitempty"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// SubmitInferenceRequest is the body of POST /inference/async and each
// element of POST /inference/batch.
type SubmitInferenceRequest struct {
	Prompt      string   `json:"prompt"`
	Priority    string   `json:"priority,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Model       string   `json:"model,omitempty"`
}

type SubmitInferenceResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type SubmitBatchResponse struct {
	TaskIDs []string `json:"task_ids"`
	Count   int      `json:"count"`
}

type TaskResult struct {
	Response        string `json:"response"`
	TokensGenerated int    `json:"tokens_generated"`
	BatchID         string `json:"batch_id"`
	BatchSize       int    `json:"batch_size"`
	Source          string `json:"source,omitempty"`
}

type TaskRecord struct {
	TaskID         string      `json:"task_id"`
	Status         string      `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	ProcessingTime *float64    `json:"processing_time,omitempty"`
	Result         *TaskResult `json:"result,omitempty"`
	Error          string      `json:"error,omitempty"`
}

type ListTasksResponse struct {
	Tasks []TaskRecord `json:"tasks"`
	Count int          `json:"count"`
}

type HealthResponse struct {
	Status   string         `json:"status"`
	Mode     string         `json:"mode"`
	Batching BatchingHealth `json:"batching"`
}

type BatchingHealth struct {
	Config          BatchingConfig `json:"config"`
	Depth           int            `json:"depth"`
	InFlightBatches int            `json:"in_flight_batches"`
}

type BatchingConfig struct {
	MaxBatchSize         int     `json:"max_batch_size"`
	BatchWaitTimeoutSec  float64 `json:"batch_wait_timeout_seconds"`
	MaxConcurrentBatches int     `json:"max_concurrent_batches"`
}

type StatsResponse struct {
	TotalRequests    int64   `json:"total_requests"`
	TotalBatches     int64   `json:"total_batches"`
	TotalCompleted   int64   `json:"total_completed"`
	TotalFailed      int64   `json:"total_failed"`
	AverageBatchSize float64 `json:"average_batch_size"`
	LargestBatch     int     `json:"largest_batch"`
	MockResponses    int64   `json:"mock_responses"`
	RealResponses    int64   `json:"real_responses"`
}

// OpenAI-compatible passthrough shapes.

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type CompletionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   Usage                  `json:"usage"`
}

type CompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
}

type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

func RFC3339Now() time.Time {
	return time.Now().UTC()
}
