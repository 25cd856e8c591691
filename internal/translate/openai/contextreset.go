package openai

import "strings"

const (
	pendingTasksMarker = "Pending Tasks:"
	nextStepMarker     = "Optional Next Step:"
)

// contextResetNotice builds the user-visible notice emitted when the
// upstream reports an `update_task_description` context reset, pulling out
// whichever "Pending Tasks" or "Optional Next Step" section the description
// carries.
func contextResetNotice(description string) string {
	switch {
	case strings.Contains(description, pendingTasksMarker):
		section := sectionAfter(description, pendingTasksMarker)
		return "\n\n📋 **Context was reset, but there are pending tasks:**\n" + section +
			"\n\n⚠️ **Important:** to avoid repeated resets:\n" +
			"• Option 1: run a context-compaction command (e.g. `/compact`)\n" +
			"• Option 2: start a new conversation to continue the unfinished task\n\n" +
			"💡 Please continue the previous work, or ask what specifically needs to be done."
	case strings.Contains(description, nextStepMarker):
		section := sectionAfter(description, nextStepMarker)
		return "\n\n📋 **Context was reset; suggested next step:**\n" + section +
			"\n\n⚠️ **Important:** to avoid repeated resets:\n" +
			"• Option 1: run a context-compaction command (e.g. `/compact`)\n" +
			"• Option 2: start a new conversation to continue\n\n" +
			"💡 Please continue the previous work, or ask what specifically needs to be done."
	default:
		return "\n\n📋 **Context was reset**\n\n⚠️ **Important:** to avoid repeated resets:\n" +
			"• Option 1: run a context-compaction command (e.g. `/compact`)\n" +
			"• Option 2: start a new conversation to continue\n\n" +
			"💡 The conversation context grew too long and was automatically reset. If there was unfinished work, please restate what you'd like to continue."
	}
}

func sectionAfter(s, marker string) string {
	idx := strings.Index(s, marker)
	if idx < 0 {
		return ""
	}
	rest := s[idx+len(marker):]
	if cut := strings.Index(rest, "\n\n"); cut >= 0 {
		rest = rest[:cut]
	}
	return strings.TrimSpace(rest)
}
