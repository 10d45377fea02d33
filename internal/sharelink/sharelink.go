// Package sharelink builds and parses document share links.
//
// Read-only links carry a single "param" value: the string "library,docID",
// base64 encoded and then reversed character by character. This only hides
// the target from casual reading. It grants nothing and restricts nothing;
// anyone holding a read-only link can rebuild the edit link.
//
// Edit links carry plain "lib" and "doc" parameters.
package sharelink

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Query parameter names.
const (
	ParamEncoded = "param"
	ParamLibrary = "lib"
	ParamDoc     = "doc"
)

// ErrMalformed is returned for share parameters that cannot be decoded.
var ErrMalformed = errors.New("malformed share link")

// EncodeReadOnly returns the obfuscated "param" value for library and docID.
func EncodeReadOnly(library string, docID int64) string {
	raw := library + "," + strconv.FormatInt(docID, 10)
	return reverse(base64.StdEncoding.EncodeToString([]byte(raw)))
}

// DecodeReadOnly reverses EncodeReadOnly.
func DecodeReadOnly(param string) (string, int64, error) {
	if param == "" {
		return "", 0, fmt.Errorf("%w: empty", ErrMalformed)
	}
	// '+' arrives as ' ' when the value was not query-escaped
	param = strings.ReplaceAll(param, " ", "+")
	raw, err := base64.StdEncoding.DecodeString(reverse(param))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	s := string(raw)
	i := strings.LastIndexByte(s, ',')
	if i <= 0 {
		return "", 0, fmt.Errorf("%w: missing separator", ErrMalformed)
	}
	id, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad document id %q", ErrMalformed, s[i+1:])
	}
	return s[:i], id, nil
}

// ReadOnlyURL returns base with the encoded "param" query parameter set.
func ReadOnlyURL(base, library string, docID int64) (string, error) {
	return withQuery(base, url.Values{ParamEncoded: {EncodeReadOnly(library, docID)}})
}

// EditURL returns base with plain "lib" and "doc" query parameters set.
func EditURL(base, library string, docID int64) (string, error) {
	return withQuery(base, url.Values{
		ParamLibrary: {library},
		ParamDoc:     {strconv.FormatInt(docID, 10)},
	})
}

func withQuery(base string, v url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	for k := range v {
		q.Set(k, v.Get(k))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func reverse(s string) string {
	r := []rune(s)
	slices.Reverse(r)
	return string(r)
}
