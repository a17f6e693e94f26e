package chat

import (
	"sort"
	"strings"
	"time"
)

// Event is a raw inbound chat line as delivered by a Transport.
type Event struct {
	Channel     string
	Username    string // login name (tags["username"])
	DisplayName string // tags["display-name"], may be empty
	Text        string
	Badges      map[string]string // badge name -> version
	Color       string
	Self        bool
	ReceivedAt  time.Time
}

// ChatMessage is an accepted message. It is immutable once created and owned by the Store.
type ChatMessage struct {
	Seq             int               `json:"seq"`
	Username        string            `json:"username"`
	DisplayName     string            `json:"display_name"`
	Text            string            `json:"text"`
	Badges          map[string]string `json:"badges,omitempty"`
	Color           string            `json:"color,omitempty"`
	ProfileImageURL string            `json:"profile_image_url,omitempty"`
	ReceivedAt      time.Time         `json:"received_at"`
}

// Badge is a single badge in render order.
type Badge struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// BadgeList returns the badges sorted by name so rendering is deterministic.
func BadgeList(badges map[string]string) []Badge {
	if len(badges) == 0 {
		return nil
	}
	out := make([]Badge, 0, len(badges))
	for name, version := range badges {
		out = append(out, Badge{Name: name, Version: version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// displayIdentity prefers the display name and falls back to the login.
func displayIdentity(ev Event) string {
	if dn := strings.TrimSpace(ev.DisplayName); dn != "" {
		return dn
	}
	return strings.TrimSpace(ev.Username)
}

func copyBadges(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ParseBadgeTag parses the raw IRC badges tag ("subscriber/12,premium/1").
func ParseBadgeTag(tag string) map[string]string {
	if tag == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(tag, ",") {
		name, version, _ := strings.Cut(part, "/")
		if name == "" {
			continue
		}
		out[name] = version
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
