// Package codec turns a project into the text payload carried in a share
// link fragment and back.
//
// The payload is standard base64 of the UTF-8 JSON serialization. Before
// encoding, inline image data is stripped and a lossy, schema-aware
// compression pass rounds coordinates and drops fields equal to their
// defaults; the compressed form is used only when it saves at least 20%.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	apperrors "invitely/pkg/errors"
	"invitely/pkg/models"
)

const (
	// MaxURLLength is the longest viewer URL that will be published
	MaxURLLength = 2048
	// MaxRemoteSrcLength bounds the remote image URLs kept in a share payload
	MaxRemoteSrcLength = 800
	// minSavings is the fraction compression must save to be used
	minSavings = 0.20
)

// StripHeavy returns a copy of p whose image sources are cleared unless they
// are short http(s) URLs. Thumbnails are always kept.
func StripHeavy(p models.Project) models.Project {
	out := p.Clone()
	for i := range out.Slides {
		img := out.Slides[i].Image
		if img == nil {
			continue
		}
		if !isShortRemote(img.Src) {
			img.Src = ""
		}
	}
	return out
}

func isShortRemote(src string) bool {
	if len(src) >= MaxRemoteSrcLength {
		return false
	}
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Serialize picks the JSON form used for a share payload: the compressed form
// when it is at least 20% smaller than the plain one, the plain form otherwise.
func Serialize(p models.Project) ([]byte, error) {
	stripped := StripHeavy(p)

	original, err := json.Marshal(stripped)
	if err != nil {
		return nil, err
	}

	compressed, err := Compress(stripped)
	if err != nil {
		return original, nil
	}

	if float64(len(compressed)) <= float64(len(original))*(1-minSavings) {
		return compressed, nil
	}
	return original, nil
}

// Encode produces the base64 share payload for p. The input is not modified.
func Encode(p models.Project) (string, error) {
	data, err := Serialize(p)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrTypeShare, "ENCODE_FAILED", "failed to serialize project")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses a share payload. Any failure yields ErrInvalidShareLink and
// no project.
func Decode(payload string) (*models.Project, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, apperrors.ErrInvalidShareLink.WithContext("reason", "empty payload")
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var rawErr error
		raw, rawErr = base64.RawStdEncoding.DecodeString(payload)
		if rawErr != nil {
			return nil, apperrors.ErrInvalidShareLink.WithCause(err)
		}
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, apperrors.ErrInvalidShareLink.WithContext("reason", "payload is not a JSON object")
	}

	var p models.Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apperrors.ErrInvalidShareLink.WithCause(err)
	}

	p.Normalize()
	if result := apperrors.NewValidator().ValidateProject(&p); !result.IsValid {
		return nil, apperrors.ErrInvalidShareLink.WithCause(result.GetFirstError())
	}
	return &p, nil
}

// ViewerURL builds the read-only viewer link for p on top of base:
// base with ?view=1 and #d=<payload>.
func ViewerURL(base string, p models.Project) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrTypeShare, "BAD_BASE_URL", "invalid viewer base url")
	}

	payload, err := Encode(p)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("view", "1")
	u.RawQuery = q.Encode()
	u.Fragment = ""
	u.RawFragment = ""

	return u.String() + "#d=" + payload, nil
}

// ParseURL extracts the viewer flag and the raw payload from a share URL
func ParseURL(raw string) (viewOnly bool, payload string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false, "", apperrors.ErrInvalidShareLink.WithCause(err)
	}

	viewOnly = u.Query().Get("view") == "1"

	frag := u.EscapedFragment()
	for _, part := range strings.Split(frag, "&") {
		if strings.HasPrefix(part, "d=") {
			payload = strings.TrimPrefix(part, "d=")
			if unescaped, uerr := url.PathUnescape(payload); uerr == nil {
				payload = unescaped
			}
			break
		}
	}
	return viewOnly, payload, nil
}
