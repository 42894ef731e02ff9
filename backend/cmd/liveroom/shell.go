package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/liveroom"
	"github.com/9pphy4fbqg-dev/sancia-dapp/backend/session"
	"github.com/rs/zerolog"
)

const commandTimeout = 10 * time.Second

const help = `commands:
  /cam /mic /screen      toggle a device (publisher, or approved speaker for /mic)
  /request /cancel       ask for or withdraw a speaker slot (viewer)
  /leave                 give the speaker slot back (viewer)
  /approve ID /reject ID answer a pending request (publisher)
  /kick ID               revoke a speaker slot (publisher)
  /status                show session, queue and speaker state
  /quit                  leave the room
anything else is sent as chat`

type printer struct {
	mx *sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{mx: &sync.Mutex{}, w: w}
}

func (p *printer) printf(format string, args ...any) {
	p.mx.Lock()
	defer p.mx.Unlock()
	_, _ = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) event(ev liveroom.Event) {
	switch ev.Kind {
	case liveroom.EventState:
		p.printf("* %s", ev.State)
	case liveroom.EventDevice:
		p.printf("* %s %s", ev.Device, onOff(ev.Enabled))
	case liveroom.EventChat:
		p.printf("<%s> %s", short(ev.Chat.From), ev.Chat.Content)
	case liveroom.EventPresence:
		if ev.Enabled {
			p.printf("* %s joined", short(ev.Identity))
		} else {
			p.printf("* %s left", short(ev.Identity))
		}
	case liveroom.EventError:
		p.printf("! %v", ev.Err)
	default:
		p.printf("* %s %s", ev.Kind, short(ev.Identity))
	}
}

type shell struct {
	room   *liveroom.Room
	out    *printer
	logger *zerolog.Logger
}

// exec runs one input line and reports whether the shell should continue.
func (sh *shell) exec(parent context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()

	if !strings.HasPrefix(line, "/") {
		_, err := sh.room.SendChat(ctx, line)
		sh.report(err)
		return true
	}

	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	var err error
	switch fields[0] {
	case "/quit":
		return false
	case "/help":
		sh.out.printf("%s", help)
	case "/cam":
		err = sh.room.Toggle(ctx, session.Camera)
	case "/mic":
		err = sh.room.Toggle(ctx, session.Microphone)
	case "/screen":
		err = sh.room.Toggle(ctx, session.ScreenShare)
	case "/request":
		err = sh.room.RequestMic(ctx)
	case "/cancel":
		err = sh.room.CancelMicRequest(ctx)
	case "/leave":
		err = sh.room.LeaveMic(ctx)
	case "/approve":
		err = sh.room.ApproveMic(ctx, arg)
	case "/reject":
		err = sh.room.RejectMic(ctx, arg)
	case "/kick":
		err = sh.room.DisconnectMic(ctx, arg)
	case "/status":
		sh.status()
	default:
		sh.out.printf("unknown command %q, try /help", fields[0])
	}
	sh.report(err)
	return true
}

func (sh *shell) status() {
	snap := sh.room.Session()
	sh.out.printf("room=%s role=%s state=%s camera=%s mic=%s screen=%s",
		snap.RoomID, snap.Role, snap.State,
		onOff(snap.Camera), onOff(snap.Microphone), onOff(snap.ScreenShare))
	if snap.Role == session.Publisher {
		sh.out.printf("pending=%v speakers=%v", sh.room.Pending(), sh.room.Speakers())
	} else {
		sh.out.printf("speaker=%s", sh.room.SpeakerState())
	}
}

func (sh *shell) report(err error) {
	if err != nil {
		sh.logger.Debug().Err(err).Msg("command failed")
		sh.out.printf("! %v", err)
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// short renders wallet addresses as 0x + last four characters.
func short(id string) string {
	if len(id) <= 6 {
		return id
	}
	return "0x" + id[len(id)-4:]
}
