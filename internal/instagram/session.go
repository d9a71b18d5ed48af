// Package instagram implements the messaging transport against Instagram's
// private web API, authenticated with exported browser cookies.
package instagram

import (
	"encoding/json"
	"fmt"
	"os"
)

// Cookie is one exported browser cookie. Session files are the JSON cookie
// dump produced by browser extensions ("appState" format).
type Cookie struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Session holds the credentials extracted from a cookie dump. SessionID
// authenticates requests; UserID is the account's own numeric ID, needed to
// filter self-authored inbox items.
type Session struct {
	UserID    string
	SessionID string
	CSRFToken string
	Cookies   []Cookie
}

// LoadSession reads a cookie-dump session file. Files may either be a bare
// cookie array or an object with an "appState" key wrapping one.
func LoadSession(path string) (*Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	return ParseSession(raw)
}

func ParseSession(raw []byte) (*Session, error) {
	var cookies []Cookie
	if err := json.Unmarshal(raw, &cookies); err != nil {
		var wrapped struct {
			AppState []Cookie `json:"appState"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil || len(wrapped.AppState) == 0 {
			return nil, fmt.Errorf("session file is not a cookie list: %w", err)
		}
		cookies = wrapped.AppState
	}

	s := &Session{Cookies: cookies}
	for _, c := range cookies {
		switch c.Key {
		case "sessionid":
			s.SessionID = c.Value
		case "csrftoken":
			s.CSRFToken = c.Value
		case "ds_user_id":
			s.UserID = c.Value
		}
	}
	if s.SessionID == "" {
		return nil, fmt.Errorf("session file missing sessionid cookie")
	}
	if s.UserID == "" {
		return nil, fmt.Errorf("session file missing ds_user_id cookie")
	}
	return s, nil
}
