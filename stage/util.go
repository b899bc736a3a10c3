package stage

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/ocflkit/ocflkit/digest"
)

func join(parts ...string) string {
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) == 0 {
		return "."
	}
	return strings.Join(nonEmpty, "/")
}

func bytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

func marshalJSON(v any) ([]byte, error) { return json.MarshalIndent(v, "", "   ") }

// digestingReader tees everything read from r into d, so a single stream
// copy both writes the destination and computes the content digest.
type digestingReader struct {
	r io.Reader
	d digest.Digester
}

func (dr *digestingReader) Read(p []byte) (int, error) {
	n, err := dr.r.Read(p)
	if n > 0 {
		dr.d.Write(p[:n])
	}
	return n, err
}

func teeReader(r io.Reader, d digest.Digester, _ []byte) io.Reader {
	return &digestingReader{r: r, d: d}
}
