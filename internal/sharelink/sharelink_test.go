package sharelink

import (
	"encoding/base64"
	"errors"
	"net/url"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		lib string
		id  int64
	}{
		{"lib1", 42},
		{"/home/me/notes", 1},
		{"a,b,c", 7},
		{"日本語ライブラリ", 123456789},
		{"x", 0},
	}
	for _, tt := range tests {
		enc := EncodeReadOnly(tt.lib, tt.id)
		lib, id, err := DecodeReadOnly(enc)
		if err != nil {
			t.Fatalf("DecodeReadOnly(%q): %v", enc, err)
		}
		if lib != tt.lib || id != tt.id {
			t.Errorf("round trip (%q, %d) -> (%q, %d)", tt.lib, tt.id, lib, id)
		}
	}
}

func TestEncodeReadOnly_IsReversedBase64(t *testing.T) {
	plain := base64.StdEncoding.EncodeToString([]byte("lib1,42"))
	got := EncodeReadOnly("lib1", 42)
	if len(got) != len(plain) {
		t.Fatalf("length %d, want %d", len(got), len(plain))
	}
	for i := range plain {
		if got[i] != plain[len(plain)-1-i] {
			t.Fatalf("EncodeReadOnly = %q, want reverse of %q", got, plain)
		}
	}
}

func TestDecodeReadOnly_Malformed(t *testing.T) {
	for _, p := range []string{
		"",
		"!!!not base64",
		encodeRaw("no-separator"),
		encodeRaw("lib,notanumber"),
		encodeRaw(",5"),
	} {
		if _, _, err := DecodeReadOnly(p); !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeReadOnly(%q) err = %v, want ErrMalformed", p, err)
		}
	}
}

// encodeRaw obfuscates an arbitrary payload the way EncodeReadOnly does.
func encodeRaw(s string) string {
	return reverse(base64.StdEncoding.EncodeToString([]byte(s)))
}

func TestDecodeReadOnly_ToleratesUnescapedPlus(t *testing.T) {
	// find a library name whose encoding contains '+'
	lib := "??>"
	enc := EncodeReadOnly(lib, 3)
	spaced := ""
	for _, r := range enc {
		if r == '+' {
			spaced += " "
			continue
		}
		spaced += string(r)
	}
	got, id, err := DecodeReadOnly(spaced)
	if err != nil {
		t.Fatalf("DecodeReadOnly(%q): %v", spaced, err)
	}
	if got != lib || id != 3 {
		t.Errorf("got (%q, %d)", got, id)
	}
}

func TestURLs(t *testing.T) {
	ro, err := ReadOnlyURL("http://localhost:5173/?theme=dark", "lib1", 42)
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(ro)
	if u.Query().Get("theme") != "dark" {
		t.Error("existing query parameters should be kept")
	}
	if u.Query().Get(ParamEncoded) != EncodeReadOnly("lib1", 42) {
		t.Errorf("param = %q", u.Query().Get(ParamEncoded))
	}

	ed, err := EditURL("http://localhost:5173/", "/srv/notes", 9)
	if err != nil {
		t.Fatal(err)
	}
	u, _ = url.Parse(ed)
	if u.Query().Get(ParamLibrary) != "/srv/notes" || u.Query().Get(ParamDoc) != "9" {
		t.Errorf("edit url = %s", ed)
	}
}

func TestParseIntent(t *testing.T) {
	ro, _ := ReadOnlyURL("http://h/", "lib1", 42)
	tests := []struct {
		name     string
		url      string
		lib      string
		doc      int64
		hasDoc   bool
		readOnly bool
		present  bool
	}{
		{name: "none", url: "http://h/"},
		{name: "read only", url: ro, lib: "lib1", doc: 42, hasDoc: true, readOnly: true, present: true},
		{name: "edit", url: "http://h/?lib=notes&doc=5", lib: "notes", doc: 5, hasDoc: true, present: true},
		{name: "library only", url: "http://h/?lib=notes", lib: "notes", present: true},
		{name: "param wins", url: ro + "&lib=other&doc=1", lib: "lib1", doc: 42, hasDoc: true, readOnly: true, present: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := ParseIntent(tt.url)
			if err != nil {
				t.Fatal(err)
			}
			if in.Present() != tt.present || in.Library != tt.lib || in.ReadOnly != tt.readOnly {
				t.Errorf("intent = %+v", in)
			}
			if (in.DocumentID != nil) != tt.hasDoc || (tt.hasDoc && *in.DocumentID != tt.doc) {
				t.Errorf("document = %v, want %d", in.DocumentID, tt.doc)
			}
		})
	}
}

func TestParseIntent_BadDoc(t *testing.T) {
	if _, err := ParseIntent("http://h/?lib=a&doc=x"); !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
	if _, err := ParseIntent("http://h/?param=%%%"); err == nil {
		t.Error("expected error for unparsable url")
	}
}
