package port

import "time"

type Sink interface {
	// Live line: overwrite last line (no newline)
	WriteLive(line string) error
	// Snapshot line: append a historical line with timestamp, then leave an empty line for live updates
	WriteSnapshot(ts time.Time, line string) error
	// Normal newline (for logs and command output)
	NewLine() error
}
