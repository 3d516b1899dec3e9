// Package pdf reads estimate documents. Page text comes from
// ledongthuc/pdf; form templates are handled by the form subpackage.
package pdf

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/phuslu/log"
)

// DefaultMaxTextSize caps the text kept from one document.
const DefaultMaxTextSize = 10 * 1024 * 1024

// TextExtractor returns the plain text of an estimate PDF: every page's text
// in page order, pages separated by a newline.
type TextExtractor struct {
	validator   *Validator
	maxTextSize int
	logger      *log.Logger
}

// NewTextExtractor creates an extractor with the given file size limit.
func NewTextExtractor(maxFileSize int64, logger *log.Logger) *TextExtractor {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &TextExtractor{
		validator:   NewValidator(maxFileSize),
		maxTextSize: DefaultMaxTextSize,
		logger:      logger,
	}
}

// ExtractText reads path. Pages that fail to decode are skipped, so a
// document with no readable text yields "" rather than an error.
func (e *TextExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	if _, err := e.validator.CheckFile(path); err != nil {
		return "", err
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	pages := make([]string, 0, reader.NumPage())
	total := 0
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		content, err := pageText(reader, pageNum)
		if err != nil {
			e.logger.Warn().Str("path", path).Int("page", pageNum).Err(err).Msg("skipping unreadable page")
			pages = append(pages, "")
			continue
		}

		if total+len(content) > e.maxTextSize {
			if remaining := e.maxTextSize - total; remaining > 0 {
				pages = append(pages, truncateUTF8(content, remaining))
			}
			e.logger.Warn().Str("path", path).Int("limit", e.maxTextSize).Msg("text truncated")
			break
		}
		pages = append(pages, content)
		total += len(content)
	}

	return strings.Join(pages, "\n"), nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// pageText extracts one page, converting decoder panics into errors.
func pageText(reader *pdf.Reader, pageNum int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: decoder panic: %v", pageNum, r)
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
