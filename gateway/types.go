package gateway

import (
	"bytes"
	"encoding/json"
	"time"
)

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code,omitempty"`
}

type securityCodeRequest struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code,omitempty"`
}

// MessageResponse is the success payload of operations that only report a message.
type MessageResponse struct {
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
}

// LoginResponse is the success payload of POST /login.
type LoginResponse struct {
	RequiresSecurity bool   `json:"requiresSecurity"`
	SessionID        string `json:"sessionId,omitempty"`
	UserEmail        string `json:"userEmail,omitempty"`
	Message          string `json:"message"`
	User             *User  `json:"user,omitempty"`
}

// User is the payload of GET /me.
type User struct {
	ID            string    `json:"id,omitempty"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          string    `json:"role,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     Timestamp `json:"createdAt,omitzero"`
}

// AccessLogEntry is one element of GET /access-logs. Location and DeviceInfo
// are empty when the service could not resolve them.
type AccessLogEntry struct {
	Action     string    `json:"action"`
	IPAddress  string    `json:"ipAddress"`
	Location   string    `json:"location,omitempty"`
	DeviceInfo string    `json:"deviceInfo,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	Success    bool      `json:"success"`
	Timestamp  Timestamp `json:"timestamp"`
}

type accessLogsResponse struct {
	Logs []AccessLogEntry `json:"logs"`
}

type errorResponse struct {
	Message      string `json:"message"`
	Error        string `json:"error"`
	BlockedUntil string `json:"blockedUntil"`
}

// Timestamp accepts RFC 3339 as well as the zone-less ISO 8601 form the
// service emits, which is read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, ok := parseTimestamp(s)
	if !ok {
		return &time.ParseError{Layout: time.RFC3339, Value: s, Message: ": unsupported timestamp"}
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
