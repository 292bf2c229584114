package config

import (
	"fmt"
	"net/url"
)

type ServerConfig struct {
	// URL is the server URL.
	URL string `json:"url"`

	// URLs is a list of server URLs, used by commands that query multiple
	// nodes.
	URLs []string `json:"urls"`
}

func (c *ServerConfig) Validate() error {
	if c.URL == "" && len(c.URLs) == 0 {
		return fmt.Errorf("missing url")
	}
	if c.URL != "" {
		if _, err := url.Parse(c.URL); err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
	}
	for _, u := range c.URLs {
		if _, err := url.Parse(u); err != nil {
			return fmt.Errorf("invalid url: %s: %w", u, err)
		}
	}
	return nil
}

type Config struct {
	Server ServerConfig `json:"server"`
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
