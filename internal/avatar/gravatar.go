// Package avatar derives profile image URLs from email addresses using the
// Gravatar lookup convention.
package avatar

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

const baseURL = "//www.gravatar.com/avatar/"

// Options control the image Gravatar serves.
type Options struct {
	Size    int
	Rating  string
	Default string
}

// DefaultOptions match the avatar assigned at registration: 200px,
// pg-rated, "mystery man" fallback.
var DefaultOptions = Options{Size: 200, Rating: "pg", Default: "mm"}

// URL returns the protocol-relative Gravatar URL for email.
func URL(email string, opts Options) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))

	q := url.Values{}
	if opts.Size > 0 {
		q.Set("s", strconv.Itoa(opts.Size))
	}
	if opts.Rating != "" {
		q.Set("r", opts.Rating)
	}
	if opts.Default != "" {
		q.Set("d", opts.Default)
	}

	u := baseURL + hex.EncodeToString(sum[:])
	if encoded := q.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}
