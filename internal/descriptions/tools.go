package descriptions

import "sort"

// Tool names exposed by the MCP server.
const (
	ToolFill           = "bcif_fill"
	ToolResolve        = "bcif_resolve"
	ToolMergeRules     = "bcif_merge_rules"
	ToolTemplateFields = "bcif_template_fields"
	ToolServerInfo     = "bcif_server_info"
)

const (
	BCIFFillDescription = `Fill the BCIF claim form PDF from a repair estimate PDF.

**When to use:** You have an estimate (CCC ONE or similar) and need the Bodily/Collision Intake Form filled from it.

**Why it's useful:** Extracts claim, insured, vehicle and loss details with the configured rule set, clears every checkbox the blank template ships checked, then ticks exactly the options the estimate supports.

**Examples:**
• Fill one claim: "Fill the BCIF for estimates/998877.pdf into out/998877-bcif.pdf"
• Use a tuned rule set: "Fill with rules mapping.json and patch ccc_one.yaml"
• Several claims at once: pass estimates as a list; they run in parallel and each gets its own result

**Result kinds:**
• filled: the template with values written
• fallback_summary: the template could not be written; a one-page summary PDF of the extracted values was produced instead
• fallback_text: even the summary PDF failed; a .txt listing sits next to the requested output

**Best practices:** Run bcif_resolve first when tuning rules; pass debug_json to keep the resolved values alongside the form.`

	BCIFResolveDescription = `Show what the rule set extracts from an estimate without touching any form.

**When to use:** Checking or tuning a rule set, or when only the extracted values are needed.

**Why it's useful:** Returns the resolved text fields (after titlecasing, ZIP selection and make code mapping) and the checkbox options that would be ticked.

**Examples:**
• Dry run: "Resolve estimates/998877.pdf with mapping.json"
• Patch check: "Resolve with mapping.json plus patch.yaml and compare"

**Best practices:** Fields absent from the result had no matching pattern; add patterns in a patch rule set rather than editing the base.`

	BCIFMergeRulesDescription = `Merge a patch rule set over a base rule set.

**When to use:** A site or estimating system needs extra patterns, options or make codes on top of the shared mapping.

**Why it's useful:** Patterns and checkbox matches are unioned in order, compose rules and post-processing settings from the patch win, and meta notes accumulate. The base and patch files are never modified.

**Examples:**
• Preview: "Merge ccc_one.yaml over mapping.json"
• Persist: "Merge ccc_one.yaml over mapping.json and write merged.json"

**Best practices:** Writing the merged result is optional; JSON or YAML is picked from the output extension.`

	BCIFTemplateFieldsDescription = `List the AcroForm fields of a BCIF template.

**When to use:** Writing rules and need the exact field names and checkbox states the template uses.

**Why it's useful:** Reports fully qualified field names, whether each is text or a checkbox, its appearance states and its current value.

**Examples:**
• Field names for a new template revision: "List the fields of templates/bcif-2024.pdf"
• Verify output: "List the fields of out/998877-bcif.pdf to confirm what was written"

**Best practices:** Rule set text field names and checkbox option names must match these names exactly.`

	BCIFServerInfoDescription = `Get server configuration, available tools and the work directory inventory.

**When to use:** Starting a session or checking which estimates, templates and rule sets are available.

**Why it's useful:** Shows the work directory every path must stay inside, the default rule sets and template, and lists PDFs and rule set files found there.

**Best practices:** Run at the start of a session; relative paths in other tools are taken relative to the work directory shown here.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	ToolFill:           BCIFFillDescription,
	ToolResolve:        BCIFResolveDescription,
	ToolMergeRules:     BCIFMergeRulesDescription,
	ToolTemplateFields: BCIFTemplateFieldsDescription,
	ToolServerInfo:     BCIFServerInfoDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the tool names sorted
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
