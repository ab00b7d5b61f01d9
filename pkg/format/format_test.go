package format

import (
	"testing"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
)

type stubDecoder struct{ ext string }

func (s stubDecoder) Decode([]byte, string) (*Result, error) { return &Result{Format: s.ext}, nil }
func (s stubDecoder) Supports(name string) bool              { return Ext(name) == s.ext }
func (s stubDecoder) Format() string                         { return s.ext }

func TestDetect(t *testing.T) {
	decoders := []Decoder{stubDecoder{"swc"}, stubDecoder{"asc"}}

	d, err := Detect("/data/cell.SWC", decoders...)
	if err != nil || d.Format() != "swc" {
		t.Errorf("Detect(cell.SWC) = %v, %v", d, err)
	}
	_, err = Detect("cell.obj", decoders...)
	if !perrors.Is(err, perrors.ErrCodeUnsupportedFormat) {
		t.Errorf("Detect(cell.obj) error = %v, want UNSUPPORTED_FORMAT", err)
	}
	if _, err := ByName("asc", decoders...); err != nil {
		t.Errorf("ByName(asc): %v", err)
	}
}

func TestExt(t *testing.T) {
	tests := map[string]string{
		"a.swc":              "swc",
		"dir/B.ASC":          "asc",
		"x.streamlines.json": "streamlines.json",
		"snapshot.json":      "json",
		"noext":              "",
	}
	for in, want := range tests {
		if got := Ext(in); got != want {
			t.Errorf("Ext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSniff(t *testing.T) {
	dat := append([]byte{0}, []byte(DATMagic)...)
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"dat", dat, DAT},
		{"swc", []byte("# header\n1 1 0 0 0 1 -1\n"), SWC},
		{"asc", []byte("; comment\n(\"Soma\" (Closed))"), ASC},
		{"asc paren", []byte("  ((Dendrite)\n"), ASC},
		{"nl xml", []byte(`<?xml version="1.0"?><mbf version="4.0">`), XML},
		{"xwc", []byte(`<swcPlus version="0.3"/>`), XWC},
		{"snapshot", []byte(`{"treePoints": {}}`), JSON},
		{"jwc", []byte(`{"swcPoints": []}`), JWC},
		{"streamlines", []byte(`{"injection_sites": []}`), Streamlines},
		{"empty", []byte("  \n"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.data); got != tt.want {
				t.Errorf("Sniff = %q, want %q", got, tt.want)
			}
		})
	}
}
