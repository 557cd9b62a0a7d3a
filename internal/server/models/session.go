package models

import "time"

// Session is a server-side session row. The client only ever sees ID,
// wrapped in a signed cookie.
type Session struct {
	ID        string
	Data      SessionData
	ExpiresAt time.Time
}

// SessionData is the JSON payload of a session.
type SessionData struct {
	IsLoggedIn bool                `json:"is_logged_in"`
	UserID     int64               `json:"user_id,omitempty"`
	CSRFToken  string              `json:"csrf_token,omitempty"`
	Flash      map[string][]string `json:"flash,omitempty"`
}

// AddFlash queues msg under key until the next PopFlash.
func (d *SessionData) AddFlash(key, msg string) {
	if d.Flash == nil {
		d.Flash = make(map[string][]string)
	}
	d.Flash[key] = append(d.Flash[key], msg)
}

// PopFlash returns and removes the messages stored under key.
func (d *SessionData) PopFlash(key string) []string {
	msgs, ok := d.Flash[key]
	if !ok {
		return nil
	}
	delete(d.Flash, key)
	if len(d.Flash) == 0 {
		d.Flash = nil
	}
	return msgs
}
