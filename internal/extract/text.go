package extract

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// chardetAliases maps detector charset names that the WHATWG index does not
// know to labels it does.
var chardetAliases = map[string]string{
	"gb-18030":     "gb18030",
	"iso-8859-8-i": "iso-8859-8",
}

// extractText reads a text file, decoding it to UTF-8 when the detected
// charset differs.
func (e *FileExtractor) extractText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open text: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, e.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return decodeText(data)
}

// decodeText converts data to UTF-8.
func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))
	if utf8.Valid(data) {
		return string(data), nil
	}

	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), ""), nil
	}
	label := strings.ToLower(result.Charset)
	if alias, ok := chardetAliases[label]; ok {
		label = alias
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return strings.ToValidUTF8(string(data), ""), nil
	}

	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", result.Charset, err)
	}
	return string(decoded), nil
}
