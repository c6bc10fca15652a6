package auth

import (
	"errors"
	"strings"
)

// Error is the normalized failure of every auth call: one human-readable
// message, plus the provider's error code when it sent one.
type Error struct {
	Message string
	Code    string
	Status  int
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// codeNetwork marks transport failures (no HTTP answer at all).
const codeNetwork = "network_failure"

// Reason is the user-facing category of an auth failure.
type Reason string

const (
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonEmailNotConfirmed  Reason = "email_not_confirmed"
	ReasonInvalidEmail       Reason = "invalid_email"
	ReasonUserExists         Reason = "user_exists"
	ReasonWeakPassword       Reason = "weak_password"
	ReasonNetwork            Reason = "network"
	ReasonUnknown            Reason = "unknown"
)

var codeReasons = map[string]Reason{
	"invalid_credentials":   ReasonInvalidCredentials,
	"invalid_grant":         ReasonInvalidCredentials,
	"email_not_confirmed":   ReasonEmailNotConfirmed,
	"email_address_invalid": ReasonInvalidEmail,
	"validation_failed":     ReasonInvalidEmail,
	"user_already_exists":   ReasonUserExists,
	"email_exists":          ReasonUserExists,
	"weak_password":         ReasonWeakPassword,
	codeNetwork:             ReasonNetwork,
}

// Order matters: "Invalid login credentials" must win over "Invalid email".
var messageReasons = []struct {
	substr string
	reason Reason
}{
	{"Invalid login credentials", ReasonInvalidCredentials},
	{"Invalid email or password", ReasonInvalidCredentials},
	{"Email not confirmed", ReasonEmailNotConfirmed},
	{"Invalid email", ReasonInvalidEmail},
	{"already registered", ReasonUserExists},
	{"already exists", ReasonUserExists},
	{"Password", ReasonWeakPassword},
	{"Network", ReasonNetwork},
}

// Classify maps an auth failure to a Reason. The provider's error code is
// used when present; message matching is kept for providers that only send text.
func Classify(err error) Reason {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Code != "" {
		if r, ok := codeReasons[ae.Code]; ok {
			return r
		}
	}
	msg := err.Error()
	for _, m := range messageReasons {
		if strings.Contains(msg, m.substr) {
			return m.reason
		}
	}
	return ReasonUnknown
}
