package api

// TranslationRequest is the body of POST /v1/translations.
type TranslationRequest struct {
	Sources []string `json:"sources"`
}

// TranslationResult pairs one source sentence with its best decoded
// hypothesis.
type TranslationResult struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float32 `json:"score"`
}

// TranslationResponse is the response for one translation batch.
type TranslationResponse struct {
	ID           string              `json:"id"`
	Object       string              `json:"object"`
	Created      int64               `json:"created"`
	Translations []TranslationResult `json:"translations"`
}

// ResponseError is the error payload shared by all endpoints.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}
