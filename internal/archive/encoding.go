package archive

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
)

var nameEncodings = map[string]encoding.Encoding{
	"cp437":     charmap.CodePage437,
	"ibm437":    charmap.CodePage437,
	"cp850":     charmap.CodePage850,
	"cp866":     charmap.CodePage866,
	"euc-kr":    korean.EUCKR,
	"cp949":     korean.EUCKR,
	"shift-jis": japanese.ShiftJIS,
	"sjis":      japanese.ShiftJIS,
	"gbk":       simplifiedchinese.GBK,
	"utf-8":     encoding.Nop,
	"utf8":      encoding.Nop,
}

// LookupEncoding returns the charset registered under label.
func LookupEncoding(label string) (encoding.Encoding, error) {
	enc, ok := nameEncodings[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return nil, fmt.Errorf("archive: unknown name encoding %q", label)
	}
	return enc, nil
}

// KnownEncoding reports whether label names a supported charset.
func KnownEncoding(label string) bool {
	_, err := LookupEncoding(label)
	return err == nil
}

// DecodeName converts a legacy-encoded member name to UTF-8. Names that are
// already valid UTF-8 are returned unchanged, as is the input on decode
// failure.
func DecodeName(name string, enc encoding.Encoding) string {
	if enc == nil || enc == encoding.Nop || utf8.ValidString(name) {
		return name
	}
	decoded, err := enc.NewDecoder().String(name)
	if err != nil {
		return name
	}
	return decoded
}
