package session

// Lines the server writes to clients.  Every line is sent with a CRLF
// terminator except Prompt.
const (
	Greeting = "Hello! Type HELP if you are lost."
	Prompt   = "> "

	NoticeBye         = "Bye!"
	NoticeIdle        = "Idle timeout, disconnecting."
	NoticeStopping    = "Server stopping, goodbye."
	NoticeFull        = "Server is full, please try again later."
	NoticeLineTooLong = "Line too long, disconnecting."
)

// DefaultMaxLineLength bounds a pending partial line.
const DefaultMaxLineLength = 1024

// Reason records why a session ended.
type Reason string

const (
	ReasonClientRequested  Reason = "client requested"
	ReasonIdleTimeout      Reason = "idle timeout"
	ReasonServerStopping   Reason = "server stopping"
	ReasonPeerDisconnected Reason = "peer disconnected"
	ReasonLineTooLong      Reason = "line too long"
)

// State is a session's lifecycle position.  It only moves forward.
type State int32

const (
	Active State = iota
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
