// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go — Cold-path diagnostics for the scheduler (zero-fmt)
//
// Purpose:
//   - Logs lifecycle transitions, discarded frames and recovered worker panics.
//   - Used only by the background thread and by setup/teardown code.
//
// Notes:
//   - Avoids fmt.Sprintf; one string concat, one write to stderr.
//   - Never called from ScheduleWork / RespondToWork / ProcessWorkResponses.
//
// ⚠️ Never invoke on the realtime thread: the write is a syscall.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import "rtwork/utils"

// DropError logs an error line prefixed by a tag.
// A nil err prints just the prefix, which is handy for tagged warnings.
//
//go:nosplit
//go:inline
//go:registerparams
func DropError(prefix string, err error) {
	if err != nil {
		utils.PrintWarning(prefix + ": " + err.Error() + "\n")
		return
	}
	utils.PrintWarning(prefix + "\n")
}

// DropMessage logs a tagged diagnostic line.
//
//go:nosplit
//go:inline
//go:registerparams
func DropMessage(prefix, message string) {
	utils.PrintWarning(prefix + ": " + message + "\n")
}
