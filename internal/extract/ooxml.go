package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
)

// extractDOCX reads the body text of a WordprocessingML document.
func (e *FileExtractor) extractDOCX(filePath string) (string, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	var b strings.Builder
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			if err := e.collectText(f, "t", &b); err != nil {
				return "", err
			}
			return truncate(b.String(), e.maxBytes), nil
		}
	}
	return "", fmt.Errorf("docx has no word/document.xml")
}

// extractPPTX reads slide text of a PresentationML document in slide order.
func (e *FileExtractor) extractPPTX(filePath string) (string, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return "", fmt.Errorf("open pptx: %w", err)
	}
	defer zr.Close()

	var slides []*zip.File
	for _, f := range zr.File {
		if slideNumber(f.Name) > 0 {
			slides = append(slides, f)
		}
	}
	sort.Slice(slides, func(i, j int) bool {
		return slideNumber(slides[i].Name) < slideNumber(slides[j].Name)
	})

	var b strings.Builder
	for _, f := range slides {
		if err := e.collectText(f, "t", &b); err != nil {
			return "", err
		}
		if int64(b.Len()) >= e.maxBytes {
			break
		}
	}
	return truncate(b.String(), e.maxBytes), nil
}

// slideNumber returns N for ppt/slides/slideN.xml, else 0.
func slideNumber(name string) int {
	if path.Dir(name) != "ppt/slides" {
		return 0
	}
	base := path.Base(name)
	if !strings.HasPrefix(base, "slide") || !strings.HasSuffix(base, ".xml") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, "slide"), ".xml"))
	if err != nil {
		return 0
	}
	return n
}

// collectText appends the character data of every <*:textElem> element in
// f to b. Paragraph ends become newlines and tabs become tabs.
func (e *FileExtractor) collectText(f *zip.File, textElem string, b *strings.Builder) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, e.maxBytes*4))
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parse %s: %w", f.Name, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case textElem:
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case textElem:
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
		if int64(b.Len()) >= e.maxBytes {
			return nil
		}
	}
}
