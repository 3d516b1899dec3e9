package pipeline

import (
	"testing"

	"github.com/phuslu/log"

	"github.com/a3tai/claim-form-filler/internal/testutil"
)

func writeTemplate(t *testing.T, dir string) string {
	t.Helper()
	return testutil.WriteForm(t, dir, "bcif.pdf")
}

func writeEstimate(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	return testutil.WriteEstimate(t, dir, name, lines...)
}

const (
	baseRulesYAML  = testutil.BaseRulesYAML
	patchRulesYAML = testutil.PatchRulesYAML
)

func writeRules(t *testing.T, dir, name, body string) string {
	t.Helper()
	return testutil.WriteFile(t, dir, name, body)
}

func quietLogger() *log.Logger {
	return testutil.QuietLogger()
}
