package assembler

import "strings"

// RestrictedTools are tools the upstream advertises natively but the proxy
// forbids, forcing the model toward caller-provided MCP tools instead.
var RestrictedTools = []string{
	"read_files",
	"write_files",
	"list_files",
	"apply_file_diffs",
	"str_replace_editor",
	"search_files",
	"search_codebase",
	"suggest_plan",
	"suggest_create_plan",
	"grep",
	"file_glob",
	"file_glob_v2",
	"read_mcp_resource",
	"write_to_long_running_shell_command",
	"suggest_new_conversation",
	"ask_followup_question",
	"attempt_completion",
}

// toolRestrictionsBlock is the ALERT-formatted block attached to the system
// prompt attachment for every request.
func toolRestrictionsBlock() string {
	var b strings.Builder
	b.WriteString("<ALERT>you are not allowed to call following tools:\n")
	for _, t := range RestrictedTools {
		b.WriteString("- `")
		b.WriteString(t)
		b.WriteString("`\n")
	}
	b.WriteString("\nIMPORTANT: When using git diff or similar commands to view file changes, always check ONE file at a time to avoid execution issues. Use separate commands for each file instead of passing multiple files to a single command.\n\n")
	b.WriteString("Example:\n- Good: git diff file1.py\n- Good: git diff file2.py\n- Avoid: git diff file1.py file2.py</ALERT>")
	return b.String()
}

// toolRestrictionsAck is the canned agent_output acknowledgement prefixed to
// history so the model has already "agreed" to the restriction before the
// conversation proper begins.
func toolRestrictionsAck() string {
	return "I understand that I am not allowed to call certain internal tools including: " +
		strings.Join(RestrictedTools, ", ") +
		". I will only use the tools provided through MCP. When using git diff or similar commands, I will check one file at a time to avoid execution issues."
}

// toolRestrictionsInline is the warning prepended to the final user query
// text, kept short (first 8 tools) so it doesn't dominate the query.
func toolRestrictionsInline() string {
	n := 8
	if n > len(RestrictedTools) {
		n = len(RestrictedTools)
	}
	return "CRITICAL REMINDER: You MUST NOT use these restricted tools: " +
		strings.Join(RestrictedTools[:n], ", ") +
		"... Use only MCP-provided tools.\n\n"
}
