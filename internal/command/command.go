// Package command parses client lines and carries out the protocol's
// commands against the sending session and its peers.
package command

import (
	"fmt"
	"strings"

	chaterr "chatd/internal/errors"
	"chatd/internal/metrics"
	"chatd/internal/session"
	"chatd/util"
)

// HelpLines is the reply to HELP.
var HelpLines = []string{
	"  BYE          - Disconnect from server",
	"  HELLO [name] - Say hello to all other connected users",
	"  HELP         - Print this help message",
}

const (
	emptyReply      = "Hello?"
	unknownFormat   = "unknown command: "
	greetingPattern = "** Greetings from %s! **"
	anonymous       = "someone"
)

// Client is the part of a session a command can act on.
type Client interface {
	ID() uint64
	Active() bool
	Send(lines ...string) error
	Close(reason session.Reason, farewell ...string) bool
}

// Peers enumerates the other sessions a broadcast reaches.
type Peers interface {
	ForEachExcept(id uint64, fn func(Client))
}

// Request is one parsed line.
type Request struct {
	Name string   // upper-cased first token, "" for an empty line
	Args []string // remaining tokens
	Raw  string   // the trimmed line
}

// Parse splits line on single spaces.  Consecutive spaces yield empty
// arguments.
func Parse(line string) Request {
	line = strings.TrimSpace(line)
	if line == "" {
		return Request{}
	}
	tokens := strings.Split(line, " ")
	return Request{
		Name: strings.ToUpper(tokens[0]),
		Args: tokens[1:],
		Raw:  line,
	}
}

// token returns the command word as the client typed it.
func (r Request) token() string {
	if i := strings.IndexByte(r.Raw, ' '); i >= 0 {
		return r.Raw[:i]
	}
	return r.Raw
}

// Dispatcher runs commands.  Peers may be nil when there is nobody to
// broadcast to.
type Dispatcher struct {
	Peers   Peers
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Dispatch handles one line from c.  It returns false when c should
// stop reading: it was closed, or a reply could not be delivered.
func (d *Dispatcher) Dispatch(c Client, line string) bool {
	req := Parse(line)
	d.Metrics.CommandHandled()

	switch req.Name {
	case "":
		return c.Send(emptyReply) == nil
	case "BYE":
		c.Close(session.ReasonClientRequested, session.NoticeBye)
		return false
	case "HELP":
		return c.Send(HelpLines...) == nil
	case "HELLO":
		d.hello(c, req)
		return true
	default:
		return c.Send(unknownFormat+req.token()) == nil
	}
}

func (d *Dispatcher) hello(c Client, req Request) {
	name := anonymous
	if len(req.Args) > 0 && req.Args[0] != "" {
		name = req.Args[0]
	}
	d.Broadcast(c.ID(), greeting(name))
}

func greeting(name string) string {
	return fmt.Sprintf(greetingPattern, name)
}

// Broadcast delivers line to every Active peer except from.  A failed
// delivery is logged and skipped.
func (d *Dispatcher) Broadcast(from uint64, line string) {
	if d.Peers == nil {
		return
	}
	d.Metrics.Broadcast()
	d.Peers.ForEachExcept(from, func(p Client) {
		if !p.Active() {
			return
		}
		if err := p.Send(line); err != nil {
			if chaterr.Is(err, chaterr.ErrSessionClosed) {
				return
			}
			bErr := &chaterr.BroadcastError{From: from, To: p.ID(), Err: err}
			d.Metrics.BroadcastFailed()
			d.Metrics.RecordError(bErr.Error())
			if d.Logger != nil {
				d.Logger.Warn("%v", bErr)
			}
		}
	})
}
