package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// validators are the HTTP cache validators remembered for one feed.
type validators struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// diskCache stores the last good body of each remote feed plus its
// validators, one directory per URL.
//
//	<root>/<sha256(url)[:16]>/body.ics
//	<root>/<sha256(url)[:16]>/meta.json
type diskCache struct {
	root string
}

func (c diskCache) dir(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.New("empty url")
	}
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(c.root, hex.EncodeToString(sum[:8])), nil
}

// load returns whatever is cached for rawURL. Missing or unreadable
// entries come back empty, not as errors.
func (c diskCache) load(rawURL string) (validators, []byte) {
	dir, err := c.dir(rawURL)
	if err != nil {
		return validators{}, nil
	}
	var v validators
	if data, err := os.ReadFile(filepath.Join(dir, "meta.json")); err == nil {
		if json.Unmarshal(data, &v) != nil {
			v = validators{}
		}
	}
	body, _ := os.ReadFile(filepath.Join(dir, "body.ics"))
	return v, body
}

// store writes the body before the metadata so meta never points at a
// missing body.
func (c diskCache) store(v validators, body []byte) error {
	dir, err := c.dir(v.URL)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	v.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}
