package dto

// RegistryErrorItem is an individual error in the registry error envelope.
type RegistryErrorItem struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
}

// RegistryErrorResponse is the JSON error envelope every non-2xx response
// carries.
type RegistryErrorResponse struct {
	Errors []RegistryErrorItem `json:"errors"`
}
