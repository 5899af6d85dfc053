package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DefaultCountryCode is used when a submission carries no dialing code.
const DefaultCountryCode = "+1"

// UnknownSourceIP is recorded when no client address can be determined.
const UnknownSourceIP = "unknown"

// ErrMalformedBody is returned by ParseSubmissionRequest when the body is not a JSON object.
var ErrMalformedBody = errors.New("request body is not a JSON object")

// SubmissionRequest is the untrusted application payload posted by the form.
// Every field is free-form text; an empty string means the field was absent.
type SubmissionRequest struct {
	FullName    string `json:"full_name" validate:"required"`
	Email       string `json:"email" validate:"required"`
	CountryCode string `json:"country_code,omitempty"` // optional; defaults to DefaultCountryCode
	Phone       string `json:"phone" validate:"required"`
	Plan        string `json:"plan" validate:"required"`
	Experience  string `json:"experience" validate:"required"`
}

// SubmissionRecord is the validated application handed to the recording sinks.
// It is built once per request and never mutated afterwards.
type SubmissionRecord struct {
	ID          string    `json:"id"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	CountryCode string    `json:"country_code"`
	Phone       string    `json:"phone"`
	Plan        string    `json:"plan"`
	Experience  string    `json:"experience"`
	SubmittedAt time.Time `json:"submitted_at"`
	SourceIP    string    `json:"source_ip"`
}

// SubmittedAtISO returns SubmittedAt as an ISO-8601 UTC string with millisecond precision.
func (r SubmissionRecord) SubmittedAtISO() string {
	return r.SubmittedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// MarshalJSON renders submitted_at in the same ISO-8601 form used in logs.
func (r SubmissionRecord) MarshalJSON() ([]byte, error) {
	type alias SubmissionRecord
	return json.Marshal(struct {
		alias
		SubmittedAt string `json:"submitted_at"`
	}{alias: alias(r), SubmittedAt: r.SubmittedAtISO()})
}

// ParseSubmissionRequest decodes body into a SubmissionRequest.
// Keys that are absent, null or not strings are left empty so validation
// reports them as missing. A body that is not a JSON object yields an empty
// request together with ErrMalformedBody.
func ParseSubmissionRequest(body []byte) (SubmissionRequest, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return SubmissionRequest{}, ErrMalformedBody
	}
	str := func(key string) string {
		s, _ := fields[key].(string)
		return s
	}
	return SubmissionRequest{
		FullName:    str("full_name"),
		Email:       str("email"),
		CountryCode: str("country_code"),
		Phone:       str("phone"),
		Plan:        str("plan"),
		Experience:  str("experience"),
	}, nil
}

// NewSubmissionRecord copies a validated request into a record.
// defaultCountryCode replaces an empty country code; pass "" to use DefaultCountryCode.
func NewSubmissionRecord(req SubmissionRequest, id string, submittedAt time.Time, sourceIP, defaultCountryCode string) SubmissionRecord {
	if defaultCountryCode == "" {
		defaultCountryCode = DefaultCountryCode
	}
	cc := req.CountryCode
	if cc == "" {
		cc = defaultCountryCode
	}
	if strings.TrimSpace(sourceIP) == "" {
		sourceIP = UnknownSourceIP
	}
	return SubmissionRecord{
		ID:          id,
		FullName:    req.FullName,
		Email:       req.Email,
		CountryCode: cc,
		Phone:       req.Phone,
		Plan:        req.Plan,
		Experience:  req.Experience,
		SubmittedAt: submittedAt.UTC(),
		SourceIP:    sourceIP,
	}
}
