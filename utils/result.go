package utils

type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Result describes the outcome of a contact graph operation. Expected business
// conditions (duplicate contact, unknown email) are reported here instead of
// as errors.
type Result struct {
	Status        Status `json:"type"`
	Kind          Kind   `json:"kind,omitempty"`
	Message       string `json:"message"`
	ChatID        string `json:"chatId,omitempty"`
	ContactUserID string `json:"contactUserId,omitempty"`
	IsSelfContact bool   `json:"isSelfContact,omitempty"`
}

func Success(message string) *Result {
	return &Result{Status: StatusSuccess, Message: message}
}

func Warning(kind Kind, message string) *Result {
	return &Result{Status: StatusWarning, Kind: kind, Message: message}
}

func Failure(kind Kind, message string) *Result {
	return &Result{Status: StatusError, Kind: kind, Message: message}
}

func (r *Result) OK() bool {
	return r.Status == StatusSuccess
}
