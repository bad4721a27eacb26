package chat

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Parse classifies a line. It never fails: anything it cannot make sense of
// is TagMalformed with the original line as Text.
func Parse(line string) Command {
	first, rest := cutToken(line)
	if !strings.HasPrefix(first, "/") {
		return Command{Tag: TagBroadcast, Text: line}
	}

	malformed := Command{Tag: TagMalformed, Text: line}
	switch first {
	case CmdQuit, CmdList:
		if !isBlank(rest) {
			return malformed
		}
		if first == CmdQuit {
			return Command{Tag: TagQuit}
		}
		return Command{Tag: TagList}
	case CmdWhisper:
		target, text := cutToken(rest)
		if target == "" || isBlank(text) {
			return malformed
		}
		return Command{Tag: TagWhisper, Target: target, Text: trimLeftSpace(text)}
	case CmdAnon:
		if isBlank(rest) {
			return malformed
		}
		return Command{Tag: TagAnon, Text: trimLeftSpace(rest)}
	case CmdUser:
		name, extra := cutToken(rest)
		if !isBlank(extra) || ValidateName(name) != nil {
			return malformed
		}
		return Command{Tag: TagRename, Name: name}
	default:
		return malformed
	}
}

// ValidateName checks display name constraints: 1..MaxNameLen code points,
// no whitespace, no leading '/'.
func ValidateName(name string) error {
	if name == "" || !utf8.ValidString(name) || utf8.RuneCountInString(name) > MaxNameLen {
		return ErrNameInvalid
	}
	if strings.HasPrefix(name, "/") || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return ErrNameInvalid
	}
	return nil
}

// cutToken splits off the first whitespace-separated token. rest starts at the
// whitespace following the token.
func cutToken(s string) (token, rest string) {
	s = trimLeftSpace(s)
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

func trimLeftSpace(s string) string {
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
