package chat

import "errors"

// Tag classifies an inbound line.
type Tag int

const (
	TagBroadcast Tag = iota
	TagWhisper
	TagAnon
	TagRename
	TagList
	TagQuit
	TagMalformed
)

func (t Tag) String() string {
	switch t {
	case TagBroadcast:
		return "broadcast"
	case TagWhisper:
		return "whisper"
	case TagAnon:
		return "anon"
	case TagRename:
		return "rename"
	case TagList:
		return "list"
	case TagQuit:
		return "quit"
	case TagMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Command is the parsed form of one inbound line.
type Command struct {
	Tag Tag
	// Target is the whisper recipient.
	Target string
	// Name is the requested display name for TagRename.
	Name string
	// Text is the payload for broadcast, whisper and anon; the original line for TagMalformed.
	Text string
}

// Protocol tokens. All are case-sensitive.
const (
	CmdQuit    = "/quit"
	CmdList    = "/list"
	CmdWhisper = "/whisper"
	CmdAnon    = "/anon"
	CmdUser    = "/user"
)

// Replies sent to the originator of a command.
const (
	ReplyUnknownCommand = "Unknown command."
	ReplyNameInUse      = "Name already in use."
	ReplyNoSuchClient   = "Message not sent. The client does not exist."
	ReplyListHeader     = "List of connected clients:"
)

// MaxNameLen is the longest display name, in code points.
const MaxNameLen = 32

var (
	ErrNameTaken   = errorString("name already in use")
	ErrNameInvalid = errorString("invalid name")
	ErrBind        = errorString("bind failed")

	ErrNotRegistered = errorString("session not in roster")
)

type errorString string

func (e errorString) Error() string { return string(e) }

// IsBindError reports whether err came from binding the listener.
func IsBindError(err error) bool {
	return errors.Is(err, ErrBind)
}
