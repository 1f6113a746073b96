// Package registration implements the account-creation core: the ordered
// anti-abuse checks, identity allocation and the atomic account factory.
package registration

import (
	"fmt"
	"sort"
	"strings"
)

// Error codes surfaced to clients, field-scoped. Codes are stable wire
// contract; messages are advisory.
const (
	CodeRegistrationDisabled = "REGISTRATION_DISABLED"
	CodeConsentRequired      = "CONSENT_REQUIRED"
	CodeInviteOnly           = "INVITE_ONLY"
	CodeProxyBlocked         = "PROXY_BLOCKED"
	CodeEmailInvalid         = "EMAIL_INVALID"
	CodeEmailRequired        = "EMAIL_REQUIRED"
	CodeEmailAlreadyUsed     = "EMAIL_ALREADY_REGISTERED"
	CodeDateOfBirthRequired  = "DATE_OF_BIRTH_REQUIRED"
	CodeDateOfBirthInvalid   = "DATE_OF_BIRTH_INVALID"
	CodeDateOfBirthUnderage  = "DATE_OF_BIRTH_UNDERAGE"
	CodeMultipleAccounts     = "MULTIPLE_ACCOUNTS"
	CodeUsernameTooManyUsers = "USERNAME_TOO_MANY_USERS"
	CodeFieldRequired        = "BASE_TYPE_REQUIRED"
	CodeFieldBadLength       = "BASE_TYPE_BAD_LENGTH"
)

// FieldError is one problem with one input field.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FieldErrors maps field names to their problems, so a client can highlight
// every offending input in a single round trip.
type FieldErrors map[string][]FieldError

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fe))
	for _, f := range fields {
		codes := make([]string, 0, len(fe[f]))
		for _, e := range fe[f] {
			codes = append(codes, e.Code)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(codes, ",")))
	}
	return "field errors: " + strings.Join(parts, "; ")
}

// Add appends a problem for field and returns the receiver for chaining.
func (fe FieldErrors) Add(field, code, message string) FieldErrors {
	fe[field] = append(fe[field], FieldError{Code: code, Message: message})
	return fe
}

func fieldError(field, code, message string) FieldErrors {
	return FieldErrors{}.Add(field, code, message)
}

// Challenge is the captcha-required outcome. It is not a failure: the client
// must retry the same request with a solved challenge key.
type Challenge struct {
	SiteKey string `json:"captcha_sitekey"`
	Service string `json:"captcha_service"`
}

func (c *Challenge) Error() string {
	return "captcha challenge required"
}
