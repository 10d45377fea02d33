package sharelink

import (
	"fmt"
	"net/url"
	"strconv"
)

// Intent is where the user asked to land, computed once from the launch URL.
// The zero Intent means "no preference".
type Intent struct {
	Library    string
	DocumentID *int64
	ReadOnly   bool
}

// Present reports whether the URL named a library or document.
func (i Intent) Present() bool {
	return i.Library != "" || i.DocumentID != nil
}

// ParseIntent reads share parameters from rawURL. "param" wins over lib/doc.
// A URL without share parameters yields the zero Intent and no error.
func ParseIntent(rawURL string) (Intent, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Intent{}, fmt.Errorf("parse url: %w", err)
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return Intent{}, fmt.Errorf("parse query: %w", err)
	}
	return IntentFromQuery(q)
}

// IntentFromQuery is ParseIntent for already-parsed query values.
func IntentFromQuery(q url.Values) (Intent, error) {
	if p := q.Get(ParamEncoded); p != "" {
		lib, id, err := DecodeReadOnly(p)
		if err != nil {
			return Intent{}, err
		}
		return Intent{Library: lib, DocumentID: &id, ReadOnly: true}, nil
	}
	var in Intent
	in.Library = q.Get(ParamLibrary)
	if d := q.Get(ParamDoc); d != "" {
		id, err := strconv.ParseInt(d, 10, 64)
		if err != nil {
			return Intent{}, fmt.Errorf("%w: bad doc %q", ErrMalformed, d)
		}
		in.DocumentID = &id
	}
	return in, nil
}
