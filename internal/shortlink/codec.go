// Package shortlink encodes poll-template query parameters into the compact
// form stored behind a short code, and decodes it again.
//
// Only four parameters survive the round trip: title (t), participants (p,
// comma separated), template (d) and months (m).  The compact object is
// JSON, deflated, then base64url encoded without padding.
package shortlink

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/iliyamo/datepoll/internal/model"
)

// ErrMalformedURL is returned when the input is not an absolute http(s) URL.
var ErrMalformedURL = errors.New("malformed url")

// maxDecoded bounds the inflated payload so a hostile code cannot expand
// into an arbitrarily large object.
const maxDecoded = 64 << 10

// ParamsFromURL extracts the template parameters from rawURL.
func ParamsFromURL(rawURL string) (model.TemplateParams, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.TemplateParams{}, ErrMalformedURL
	}
	q := u.Query()
	p := model.TemplateParams{
		Title:        q.Get("title"),
		DateTemplate: q.Get("template"),
	}
	if raw := q.Get("participants"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				p.Participants = append(p.Participants, name)
			}
		}
	}
	if m, err := strconv.Atoi(q.Get("months")); err == nil && m > 0 {
		p.Months = m
	}
	return p, nil
}

// Encode turns p into its compact string form.
func Encode(p model.TemplateParams) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := zw.Write(raw); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode.
func Decode(encoded string) (model.TemplateParams, error) {
	var p model.TemplateParams
	compressed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return p, fmt.Errorf("decode base64: %w", err)
	}
	zr := flate.NewReader(bytes.NewReader(compressed))
	defer zr.Close()
	raw, err := io.ReadAll(io.LimitReader(zr, maxDecoded+1))
	if err != nil {
		return p, fmt.Errorf("inflate: %w", err)
	}
	if len(raw) > maxDecoded {
		return p, errors.New("inflate: payload too large")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("unmarshal: %w", err)
	}
	return p, nil
}

// CompressURLParams extracts and encodes the template parameters of rawURL.
func CompressURLParams(rawURL string) (string, error) {
	p, err := ParamsFromURL(rawURL)
	if err != nil {
		return "", err
	}
	return Encode(p)
}

// DecompressToURLParams decodes encoded back into query parameters.
func DecompressToURLParams(encoded string) (url.Values, error) {
	p, err := Decode(encoded)
	if err != nil {
		return nil, err
	}
	return Values(p), nil
}

// Values renders p as the query parameters the web client reads.
func Values(p model.TemplateParams) url.Values {
	v := url.Values{}
	if p.Title != "" {
		v.Set("title", p.Title)
	}
	if len(p.Participants) > 0 {
		v.Set("participants", strings.Join(p.Participants, ","))
	}
	if p.DateTemplate != "" {
		v.Set("template", p.DateTemplate)
	}
	if p.Months > 0 {
		v.Set("months", strconv.Itoa(p.Months))
	}
	return v
}
