package config

import (
	"fmt"
	"sort"
	"strings"

	"jellysync/internal/services"
)

// Server is the resolved connection for one invocation. It is handed to the
// engine explicitly; nothing in the engine reads configuration on its own.
type Server struct {
	Name   string
	URL    string
	UserID string
	Token  string
}

// Overrides carries command-line values that take precedence over the
// selected profile.
type Overrides struct {
	Profile string
	URL     string
	UserID  string
	Token   string
}

// Server resolves the active server from flags, the selected profile, and
// the JELLYFIN_URL, JELLYFIN_USER_ID and JELLYFIN_TOKEN environment variables,
// in that order of precedence. A missing token is not an error here: the
// remote client reports it as an authentication failure on first use.
func (c *Config) Server(o Overrides) (Server, error) {
	name := strings.TrimSpace(o.Profile)
	if name == "" {
		name = c.Default
	}
	profile, known := c.Profiles[name]
	if !known && strings.TrimSpace(o.Profile) != "" {
		return Server{}, services.Wrap(services.ErrConfiguration, "config", "select profile",
			fmt.Sprintf("unknown profile %q (known: %s)", name, strings.Join(c.ProfileNames(), ", ")), nil)
	}

	server := Server{
		Name:   name,
		URL:    firstNonEmpty(o.URL, profile.URL, lookupEnv("JELLYFIN_URL")),
		UserID: firstNonEmpty(o.UserID, profile.UserID, lookupEnv("JELLYFIN_USER_ID")),
		Token:  firstNonEmpty(o.Token, profile.Token, lookupEnv("JELLYFIN_TOKEN")),
	}
	server.URL = strings.TrimRight(server.URL, "/")

	if server.URL == "" {
		return Server{}, services.Wrap(services.ErrConfiguration, "config", "select profile",
			fmt.Sprintf("profile %q has no server url; set profiles.%s.url, --host, or JELLYFIN_URL", name, name), nil)
	}
	if err := validateServerURL(server.URL); err != nil {
		return Server{}, services.Wrap(services.ErrConfiguration, "config", "select profile", "server url "+server.URL, err)
	}
	if server.UserID == "" {
		return Server{}, services.Wrap(services.ErrConfiguration, "config", "select profile",
			fmt.Sprintf("profile %q has no user id; set profiles.%s.user_id, --user-id, or JELLYFIN_USER_ID", name, name), nil)
	}
	return server, nil
}

// ProfileNames lists configured profiles in sorted order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
