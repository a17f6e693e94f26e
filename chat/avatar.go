package chat

type avatarState int

const (
	avatarPending avatarState = iota
	avatarResolved
)

type avatarEntry struct {
	state avatarState
	url   string
}

// AvatarCache maps login names to profile-image URLs for one session.
// An empty resolved URL means the image is absent (lookup failed or user has none).
type AvatarCache struct {
	entries map[string]avatarEntry
}

// NewAvatarCache returns an empty cache.
func NewAvatarCache() *AvatarCache {
	return &AvatarCache{entries: make(map[string]avatarEntry)}
}

// Lookup returns the cached URL for login. needsFetch is true only the first
// time a login is seen; the login is then marked pending until Resolve or Fail.
func (c *AvatarCache) Lookup(login string) (url string, needsFetch bool) {
	e, ok := c.entries[login]
	if !ok {
		c.entries[login] = avatarEntry{state: avatarPending}
		return "", true
	}
	if e.state == avatarResolved {
		return e.url, false
	}
	return "", false
}

// Resolve stores the URL for login.
func (c *AvatarCache) Resolve(login, url string) {
	c.entries[login] = avatarEntry{state: avatarResolved, url: url}
}

// Fail records that no image could be resolved; login is not fetched again.
func (c *AvatarCache) Fail(login string) {
	c.entries[login] = avatarEntry{state: avatarResolved}
}

// Pending reports whether a lookup for login is in flight.
func (c *AvatarCache) Pending(login string) bool {
	e, ok := c.entries[login]
	return ok && e.state == avatarPending
}
