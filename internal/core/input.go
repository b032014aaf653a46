package core

// input.go normalizes raw upload bytes before they reach the CSV reader.
//
// Spreadsheet exports arrive in whatever encoding the tool felt like:
//
//   - UTF-8 with or without a BOM (Excel on Windows adds one)
//   - UTF-16 LE/BE with a BOM ("Unicode text" exports)
//   - UTF-8 with stray invalid bytes
//
// DecodeInput handles all three with golang.org/x/text. Invalid sequences
// become U+FFFD instead of failing the parse.

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// byteOrderMark is the decoded BOM rune, as it appears when a BOM survives
// decoding (e.g. a header cell copied from another file).
const byteOrderMark = "\uFEFF"

// DecodeInput wraps r so that it yields UTF-8 text with any leading BOM
// removed. UTF-16 input is detected by its BOM.
func DecodeInput(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// LimitedReader counts bytes read and fails once more than Max bytes have been
// consumed. Max <= 0 disables the limit.
type LimitedReader struct {
	reader    io.Reader
	Max       int64
	BytesRead int64
}

// NewLimitedReader creates a reader that rejects input larger than max bytes.
func NewLimitedReader(r io.Reader, max int64) *LimitedReader {
	return &LimitedReader{reader: r, Max: max}
}

// Read implements io.Reader.
func (r *LimitedReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	if r.Max > 0 && r.BytesRead > r.Max {
		return n, fmt.Errorf("%w: read more than %d bytes", ErrFileTooLarge, r.Max)
	}
	return n, err
}

// WrapInput applies the size limit to the raw bytes, then decodes them.
// The limit is checked on raw bytes so UTF-16 input is not penalized for
// shrinking during decoding.
func WrapInput(r io.Reader, maxBytes int64) io.Reader {
	return DecodeInput(NewLimitedReader(r, maxBytes))
}
