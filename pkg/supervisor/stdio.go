package supervisor

import (
	"regexp"
	"strings"
)

var ansiEscapePattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// stripANSI removes terminal escape sequences a server may still emit even
// with -Dterminal.ansi=true, since that flag only suppresses jline's own
// cursor control, not colorized log output.
func stripANSI(line string) string {
	return ansiEscapePattern.ReplaceAllString(line, "")
}

// readyMarkers are matched as substrings against an already ANSI-stripped
// stdout line; any one of them flips Starting to Running.
var readyMarkers = []string{
	`! For help, type "help"`,
	"Server started.",
	"RCON running on",
	"Timings Reset",
}

func isReadyMarker(line string) bool {
	for _, marker := range readyMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

var joinPattern = regexp.MustCompile(`(?:^|\]:? )(\S+)(?: joined the game| connected: )`)
var leavePattern = regexp.MustCompile(`(?:^|\]:? )(\S+)(?: left the game| disconnected: )`)

// parseJoin extracts a player name from a vanilla "X joined the game" line
// or a proxy "X connected: ..." line.
func parseJoin(line string) (string, bool) {
	m := joinPattern.FindStringSubmatch(line)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// parseLeave extracts a player name from a vanilla "X left the game" line
// or a proxy "X disconnected: ..." line.
func parseLeave(line string) (string, bool) {
	m := leavePattern.FindStringSubmatch(line)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}
