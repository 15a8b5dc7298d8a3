package collector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"example.com/fieldpresence/internal/domain"
)

// StatusError reports a non-2xx collector response.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("collector returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("collector returned status %d: %s", e.StatusCode, e.Detail)
}

// Unwrap lets callers match domain.ErrNetwork.
func (e *StatusError) Unwrap() error { return domain.ErrNetwork }

type punchAck struct {
	ID     flexID `json:"id"`
	Detail string `json:"detail"`
}

type locationUpdate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type latestLocation struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

type agentLocation struct {
	ID        flexID    `json:"id"`
	User      flexID    `json:"user"`
	Username  string    `json:"username"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// record keys presence by the owning user, falling back to the row id when
// the collector omits the user field.
func (a agentLocation) record() domain.PresenceRecord {
	agentID := string(a.User)
	if agentID == "" {
		agentID = string(a.ID)
	}
	return domain.PresenceRecord{
		AgentID:    agentID,
		Username:   a.Username,
		Latitude:   a.Latitude,
		Longitude:  a.Longitude,
		LastSeenAt: a.Timestamp,
	}
}

// flexID accepts both numeric and string identifiers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
