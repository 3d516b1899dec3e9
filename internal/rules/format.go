package rules

import (
	"fmt"
	"strings"
)

// Placeholders recognised in a compose format.
const (
	PlaceholderCylinders    = "cyl"
	PlaceholderDisplacement = "disp"
)

// FormatSegment is either literal text or a placeholder name.
type FormatSegment struct {
	Literal     string
	Placeholder string
}

// ComposeFormat is a parsed compose output template such as "{cyl}-{disp}".
// Doubled braces ("{{", "}}") produce literal braces.
type ComposeFormat []FormatSegment

// ParseFormat parses and checks a compose format.
func ParseFormat(format string) (ComposeFormat, error) {
	var (
		out ComposeFormat
		lit strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, FormatSegment{Literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(format); i++ {
		c := format[i]
		switch c {
		case '{':
			if i+1 < len(format) && format[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(format[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("format %q: unterminated placeholder", format)
			}
			name := format[i+1 : i+1+end]
			if name != PlaceholderCylinders && name != PlaceholderDisplacement {
				return nil, fmt.Errorf("format %q: unknown placeholder {%s}", format, name)
			}
			flush()
			out = append(out, FormatSegment{Placeholder: name})
			i += end + 1
		case '}':
			if i+1 < len(format) && format[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("format %q: single '}' must be doubled", format)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return out, nil
}

// Render substitutes the cylinder and displacement values.
func (f ComposeFormat) Render(cyl, disp string) string {
	var b strings.Builder
	for _, seg := range f {
		switch seg.Placeholder {
		case PlaceholderCylinders:
			b.WriteString(cyl)
		case PlaceholderDisplacement:
			b.WriteString(disp)
		default:
			b.WriteString(seg.Literal)
		}
	}
	return b.String()
}
