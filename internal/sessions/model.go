package sessions

import "time"

// Session tracks submission attribution for one client session.
type Session struct {
	SessionID     string    `json:"sessionId"`
	IPAddress     string    `json:"ipAddress"`
	UserAgent     string    `json:"userAgent"`
	TotalAnalyses int64     `json:"totalAnalyses"`
	CreatedAt     time.Time `json:"createdAt"`
	LastActivity  time.Time `json:"lastActivity"`
}
