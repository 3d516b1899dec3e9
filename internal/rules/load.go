package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/a3tai/claim-form-filler/internal/fileutil"
	pdferrors "github.com/a3tai/claim-form-filler/internal/pdf/errors"
)

// Format identifies the serialisation of a rule set document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatForPath picks the document format from a file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// MaxRuleFileSize bounds rule set documents; real mappings are a few KB.
const MaxRuleFileSize = 4 * 1024 * 1024

// LoadFile reads, parses and validates a rule set. Every failure is a
// configuration error.
func LoadFile(path string) (*RuleSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, pdferrors.Configuration("cannot access rule set", err).WithFile(path)
	}
	if info.IsDir() {
		return nil, pdferrors.Configuration("rule set path is a directory", nil).WithFile(path)
	}
	if info.Size() > MaxRuleFileSize {
		return nil, pdferrors.Configuration(
			fmt.Sprintf("rule set too large: %d bytes (max: %d bytes)", info.Size(), MaxRuleFileSize), nil,
		).WithFile(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pdferrors.Configuration("cannot read rule set", err).WithFile(path)
	}

	rs, err := Parse(data, FormatForPath(path))
	if err != nil {
		var fe *pdferrors.FillError
		if errors.As(err, &fe) {
			return nil, fe.WithFile(path)
		}
		return nil, err
	}
	return rs, nil
}

// Parse decodes and validates a rule set document.
func Parse(data []byte, format Format) (*RuleSet, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, pdferrors.Configuration("rule set is empty", nil)
	}

	var rs RuleSet
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &rs); err != nil {
			return nil, pdferrors.Configuration("cannot parse YAML rule set", err)
		}
	default:
		if err := json.Unmarshal(data, &rs); err != nil {
			return nil, pdferrors.Configuration("cannot parse JSON rule set", err)
		}
	}

	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Encode serialises rs in the given format. JSON output is indented with two
// spaces, matching the files the merge tool has always written.
func Encode(rs *RuleSet, format Format) ([]byte, error) {
	if format == FormatYAML {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(rs); err != nil {
			return nil, fmt.Errorf("failed to encode rule set: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode rule set: %w", err)
		}
		return buf.Bytes(), nil
	}

	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule set: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFile atomically writes rs to path, choosing the format by extension.
func WriteFile(path string, rs *RuleSet) error {
	data, err := Encode(rs, FormatForPath(path))
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write rule set %s: %w", path, err)
	}
	return nil
}
