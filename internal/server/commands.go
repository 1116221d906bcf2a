package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ir-server/ir-server/internal/driver"
	"github.com/ir-server/ir-server/internal/remotes"
	"github.com/ir-server/ir-server/pkg/irproto"
)

// handleRequest executes one directive and writes the framed reply. Every
// recognized-but-invalid request answers with an ERROR reply and keeps the
// connection open; only transport failures drop it.
func (s *Server) handleRequest(c *client, req irproto.Request) {
	var reply irproto.Reply
	switch req.Directive {
	case irproto.DirectiveVersion:
		reply = irproto.SuccessReply(req, Version)
	case irproto.DirectiveList:
		reply = s.handleList(req)
	case irproto.DirectiveSendOnce:
		reply = s.handleSendOnce(req)
	case irproto.DirectiveSendStart:
		reply = s.handleSendStart(req)
	case irproto.DirectiveSendStop:
		reply = s.handleSendStop(req)
	case irproto.DirectiveSetTransmitters:
		reply = s.handleSetTransmitters(req)
	case irproto.DirectiveSimulate:
		reply = s.handleSimulate(req)
	default:
		reply = irproto.ErrorReply(req, "unknown directive: %q", req.Directive)
	}

	log.Debug().
		Str("client", c.id.String()).
		Str("directive", req.Directive).
		Bool("success", reply.Success).
		Msg("request handled")

	if err := c.reply(reply); err != nil {
		s.removeClient(c, err)
	}
}

func (s *Server) handleList(req irproto.Request) irproto.Reply {
	snap := s.db.Snapshot()
	switch len(req.Args) {
	case 0:
		names := make([]string, 0, snap.Len())
		for _, r := range snap.All() {
			names = append(names, r.Name)
		}
		return irproto.SuccessReply(req, names...)
	case 1:
		r, ok := snap.Find(req.Args[0])
		if !ok {
			return irproto.ErrorReply(req, "unknown remote: %q", req.Args[0])
		}
		lines := make([]string, 0, len(r.Codes))
		for _, code := range r.Codes {
			lines = append(lines, fmt.Sprintf("%016x %s", code.Value, code.Name))
		}
		return irproto.SuccessReply(req, lines...)
	default:
		return irproto.ErrorReply(req, "LIST takes at most one argument")
	}
}

// resolveSendArgs validates the remote/code arguments shared by the send
// directives.
func (s *Server) resolveSendArgs(req irproto.Request) (*remotes.Remote, *remotes.Code, *irproto.Reply) {
	if len(req.Args) < 2 {
		r := irproto.ErrorReply(req, "%s needs a remote and a code", req.Directive)
		return nil, nil, &r
	}
	remote, code, err := s.db.Snapshot().FindCode(req.Args[0], req.Args[1])
	if err != nil {
		r := irproto.ErrorReply(req, "%v", err)
		return nil, nil, &r
	}
	if !s.drv.Features().Has(driver.CanSend) {
		r := irproto.ErrorReply(req, "transmission is not supported by the %s driver", s.drv.Name())
		return nil, nil, &r
	}
	return remote, code, nil
}

func (s *Server) handleSendOnce(req irproto.Request) irproto.Reply {
	if len(req.Args) > 3 {
		return irproto.ErrorReply(req, "SEND_ONCE takes a remote, a code and an optional repeat count")
	}
	remote, code, errReply := s.resolveSendArgs(req)
	if errReply != nil {
		return *errReply
	}
	if s.sendCode != nil {
		return irproto.ErrorReply(req, "busy: SEND_START is active for %s %s", s.sendRemote.Name, s.sendCode.Name)
	}

	repeats := remote.MinRepeat
	if len(req.Args) == 3 {
		n, err := strconv.ParseUint(req.Args[2], 10, 32)
		if err != nil {
			return irproto.ErrorReply(req, "bad repeat count: %q", req.Args[2])
		}
		if uint32(n) > s.cfg.Events.RepeatMax {
			return irproto.ErrorReply(req, "repeat count %d exceeds maximum of %d", n, s.cfg.Events.RepeatMax)
		}
		if uint32(n) > repeats {
			repeats = uint32(n)
		}
	}
	if err := s.drv.Send(remote, code, repeats); err != nil {
		return irproto.ErrorReply(req, "hardware send failed: %v", err)
	}
	return irproto.SuccessReply(req)
}

func (s *Server) handleSendStart(req irproto.Request) irproto.Reply {
	if len(req.Args) != 2 {
		return irproto.ErrorReply(req, "SEND_START takes a remote and a code")
	}
	remote, code, errReply := s.resolveSendArgs(req)
	if errReply != nil {
		return *errReply
	}
	if s.sendCode != nil {
		return irproto.ErrorReply(req, "busy: SEND_START is active for %s %s", s.sendRemote.Name, s.sendCode.Name)
	}
	if err := s.drv.Send(remote, code, 0); err != nil {
		return irproto.ErrorReply(req, "hardware send failed: %v", err)
	}
	s.sendRemote = remote
	s.sendCode = code
	s.sendCount = 1
	s.sendNext = time.Now().Add(sendRepeatInterval(remote))
	return irproto.SuccessReply(req)
}

func (s *Server) handleSendStop(req irproto.Request) irproto.Reply {
	if len(req.Args) != 2 {
		return irproto.ErrorReply(req, "SEND_STOP takes a remote and a code")
	}
	if s.sendCode == nil {
		return irproto.ErrorReply(req, "no repeated send in progress")
	}
	if s.sendRemote.Name != req.Args[0] || s.sendCode.Name != req.Args[1] {
		return irproto.ErrorReply(req, "SEND_STOP arguments do not match the active send (%s %s)",
			s.sendRemote.Name, s.sendCode.Name)
	}
	s.stopSendRepeat()
	return irproto.SuccessReply(req)
}

func (s *Server) handleSetTransmitters(req irproto.Request) irproto.Reply {
	if len(req.Args) == 0 {
		return irproto.ErrorReply(req, "SET_TRANSMITTERS needs at least one transmitter number")
	}
	if !s.drv.Features().Has(driver.CanSetTransmitters) {
		return irproto.ErrorReply(req, "the %s driver does not support setting transmitters", s.drv.Name())
	}
	var mask uint64
	for _, arg := range req.Args {
		n, err := strconv.ParseUint(arg, 10, 8)
		if err != nil || n < 1 || n > 64 {
			return irproto.ErrorReply(req, "bad transmitter number: %q", arg)
		}
		mask |= 1 << (n - 1)
	}
	if err := s.drv.Ioctl(driver.IoctlSetTransmitters, mask); err != nil {
		return irproto.ErrorReply(req, "setting transmitters failed: %v", err)
	}
	return irproto.SuccessReply(req)
}

// handleSimulate injects a fabricated event line into the broadcast stream,
// exactly as if it had been decoded. Gated behind explicit configuration.
func (s *Server) handleSimulate(req irproto.Request) irproto.Reply {
	if !s.cfg.Events.AllowSimulate {
		return irproto.ErrorReply(req, "SIMULATE is not permitted (enable allow_simulate)")
	}
	if len(req.Args) < 4 {
		return irproto.ErrorReply(req, "SIMULATE needs a full event line (code repeat button remote)")
	}
	ev, err := irproto.ParseEvent(strings.Join(req.Args, " "))
	if err != nil {
		return irproto.ErrorReply(req, "malformed event data: %v", err)
	}
	s.broadcast(ev)
	return irproto.SuccessReply(req)
}
