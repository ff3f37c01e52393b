package session

import (
	"encoding/json"
	"fmt"
	"os"
)

// Cookie is one browser cookie as exported by common cookie-export extensions.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   *string `json:"domain,omitempty"`
	Path     *string `json:"path,omitempty"`
	Expires  *string `json:"expires,omitempty"`
	HTTPOnly *bool   `json:"httpOnly,omitempty"`
	Secure   *bool   `json:"secure,omitempty"`
}

// ParseCookies decodes a JSON array of cookies.
func ParseCookies(b []byte) ([]Cookie, error) {
	var out []Cookie
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse cookies: %w", err)
	}
	for i, c := range out {
		if c.Name == "" {
			return nil, fmt.Errorf("parse cookies: [%d]: empty name", i)
		}
	}
	return out, nil
}

func LoadCookies(path string) ([]Cookie, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load cookies: %w", err)
	}
	return ParseCookies(b)
}
