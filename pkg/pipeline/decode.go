package pipeline

import (
	"path/filepath"
	"strings"

	perrors "github.com/matzehuels/morphkit/pkg/errors"
	"github.com/matzehuels/morphkit/pkg/format"
	"github.com/matzehuels/morphkit/pkg/format/neurolucida"
	"github.com/matzehuels/morphkit/pkg/format/swc"
	morphio "github.com/matzehuels/morphkit/pkg/io"
)

// Decoders returns every input decoder. canonical selects depth-first line
// order for the decoders that support reordering.
func Decoders(canonical bool) []format.Decoder {
	nl := neurolucida.Options{Canonicalize: canonical}
	return []format.Decoder{
		&swc.Decoder{Canonicalize: canonical},
		swc.StreamlinesDecoder{},
		&neurolucida.ASCDecoder{Options: nl},
		&neurolucida.XMLDecoder{Options: nl},
		&neurolucida.DATDecoder{Options: nl},
		morphio.NewDecoder(),
	}
}

// Resolve picks the decoder for data. A forced format wins; otherwise the
// file name decides and content sniffing is the fallback. The returned name
// carries an extension the chosen decoder recognizes, since some decoders
// dispatch on it.
func Resolve(data []byte, name, forced string, decoders []format.Decoder) (format.Decoder, string, error) {
	if name == "" {
		name = "input"
	}
	if forced != "" {
		name = withExt(name, forced)
		d, err := format.Detect(name, decoders...)
		return d, name, err
	}
	if d, err := format.Detect(name, decoders...); err == nil {
		return d, name, nil
	}
	sniffed := format.Sniff(data)
	if sniffed == "" {
		return nil, name, perrors.New(perrors.ErrCodeUnsupportedFormat, "cannot detect the format of %s", filepath.Base(name))
	}
	name = withExt(name, sniffed)
	d, err := format.Detect(name, decoders...)
	return d, name, err
}

// detectedFormat names the format a resolved name decodes as.
func detectedFormat(name string) string {
	ext := format.Ext(name)
	if ext == "streamlines.json" {
		return format.Streamlines
	}
	return ext
}

func withExt(name, f string) string {
	if detectedFormat(name) == f {
		return name
	}
	base := filepath.Base(name)
	if ext := format.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, base[len(base)-len(ext)-1:])
	}
	return base + format.ExtFor(f)
}
