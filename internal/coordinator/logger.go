package coordinator

import "fmt"

// Logger emits free-form informational lines. Messages are never part
// of the contract of correctness (§6).
type Logger func(prefix, message string)

func logf(l Logger, prefix, format string, args ...interface{}) {
	if l == nil || prefix == "" {
		return
	}
	l(prefix, fmt.Sprintf(format, args...))
}

// StdoutLogger writes lines to standard output as "<prefix>: <message>",
// the free-form sink §6 describes; wired up by cmd/coordinatord for
// interactive runs.
func StdoutLogger(prefix, message string) {
	fmt.Printf("%s: %s\n", prefix, message)
}
