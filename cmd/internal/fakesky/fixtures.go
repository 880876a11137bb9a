package fakesky

import (
	"fmt"
	"io"
	"strings"
	"time"

	"skywidget/cmd/security/password"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Post is one fixture post.
type Post struct {
	Handle      string    `yaml:"handle"`
	DisplayName string    `yaml:"display_name"`
	Text        string    `yaml:"text"`
	CreatedAt   time.Time `yaml:"created_at"`
	Likes       int       `yaml:"likes"`
	Replies     int       `yaml:"replies"`
	Reposts     int       `yaml:"reposts"`
	Quotes      int       `yaml:"quotes"`

	// Filled by Normalize when empty.
	DID  string `yaml:"did"`
	RKey string `yaml:"rkey"`
	CID  string `yaml:"cid"`
}

// Fixtures is the YAML document accepted by LoadFixtures.
type Fixtures struct {
	Account Account `yaml:"account"`
	Posts   []Post  `yaml:"posts"`
}

// Account is the single account the fake accepts. PasswordHash (Argon2id PHC
// string) takes precedence over Password; one of them must be set for logins
// to succeed.
type Account struct {
	Identifier   string `yaml:"identifier"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	Handle       string `yaml:"handle"`
	DID          string `yaml:"did"`
}

// LoadFixtures decodes a YAML fixture document and normalizes its posts.
func LoadFixtures(r io.Reader) (Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return Fixtures{}, fmt.Errorf("decode fixtures: %w", err)
	}
	if h := f.Account.PasswordHash; h != "" && !password.IsHash(h) {
		return Fixtures{}, fmt.Errorf("account: password_hash is not an argon2id hash")
	}
	for i := range f.Posts {
		if strings.TrimSpace(f.Posts[i].Handle) == "" {
			return Fixtures{}, fmt.Errorf("post %d: missing handle", i)
		}
		f.Posts[i].Normalize()
	}
	return f, nil
}

// Normalize fills DID, RKey and CID when they are empty.
func (p *Post) Normalize() {
	if p.DID == "" {
		p.DID = "did:plc:" + strings.ReplaceAll(p.Handle, ".", "-")
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if p.RKey == "" {
		p.RKey = id[:13]
	}
	if p.CID == "" {
		p.CID = "bafyrei" + id
	}
}

// URI is the at:// URI of the post record.
func (p Post) URI() string {
	return "at://" + p.DID + "/app.bsky.feed.post/" + p.RKey
}
