package hits

import "time"

// TopicLinkResolved is the topic resolved-link events are published on.
const TopicLinkResolved = "link.resolved"

// LinkResolvedEvent is emitted each time a short code is resolved to a redirect.
type LinkResolvedEvent struct {
	Code       string    `json:"code"`
	ResolvedAt time.Time `json:"resolvedAt"`
	ClientIP   string    `json:"clientIp,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	Referrer   string    `json:"referrer,omitempty"`
}
