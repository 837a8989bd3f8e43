package token

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/JuniperApparatus/core/encoding"
)

// Encode serializes a collation to the engine's interchange JSON.
func Encode(c *Collation) ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding collation: %w", err)
	}
	return data, nil
}

// Decode parses interchange JSON back into a collation.
func Decode(data []byte) (*Collation, error) {
	var c Collation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding collation: %w", err)
	}
	return &c, nil
}

// Write writes interchange JSON to w, xz-compressed when compress is set.
// Token dumps for a whole corpus run to hundreds of megabytes of highly
// repetitive JSON; xz keeps the batch artifacts small.
func Write(w io.Writer, c *Collation, compress bool) error {
	data, err := Encode(c)
	if err != nil {
		return err
	}
	if !compress {
		_, err = w.Write(data)
		return err
	}
	xw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating xz writer: %w", err)
	}
	if _, err := xw.Write(data); err != nil {
		return fmt.Errorf("writing compressed collation: %w", err)
	}
	return xw.Close()
}

// Read reads interchange JSON from r, transparently decompressing xz
// when compressed is set.
func Read(r io.Reader, compressed bool) (*Collation, error) {
	if compressed {
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating xz reader: %w", err)
		}
		r = xr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading collation: %w", err)
	}
	return Decode(data)
}

// UnescapeEngineOutput reverses the markup escaping the alignment engine
// applies to its XML output. The formatted side of each token is itself
// serialized markup, which the engine escapes a second time when it embeds
// the token in its result fragment.
func UnescapeEngineOutput(fragment string) string {
	return encoding.UnescapeXMLMarkup(fragment)
}

// IsCompressedName reports whether a file name indicates xz compression.
func IsCompressedName(name string) bool {
	return strings.HasSuffix(name, ".xz")
}
