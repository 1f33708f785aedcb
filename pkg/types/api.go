package types

// ErrorResponse is the JSON error payload returned by every endpoint.
type ErrorResponse struct {
	// Human readable error message.
	Message string `json:"message"`
	// HTTP status code, repeated in the body.
	StatusCode int `json:"status_code"`
}

// PredictionLog is the structured record written for every /predict call.
type PredictionLog struct {
	Inputs  JSONDict `json:"inputs"`
	Outputs any      `json:"outputs"`
}
