package descriptions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetToolDescription(t *testing.T) {
	for _, name := range GetAllToolNames() {
		desc := GetToolDescription(name)
		assert.True(t, strings.Contains(desc, "**When to use:**"), name)
	}
	assert.Equal(t, "Tool description not available", GetToolDescription("pdf_read_file"))
}

func TestGetAllToolNames(t *testing.T) {
	assert.Equal(t, []string{
		ToolFill,
		ToolMergeRules,
		ToolResolve,
		ToolServerInfo,
		ToolTemplateFields,
	}, GetAllToolNames())
}
