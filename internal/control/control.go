// Package control turns operator commands into queue registry calls.
//
// The same Dispatcher backs the Telegram bot and the HTTP API. A target of
// "latest" addresses the most recently registered queue.
package control

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"swarmbot/internal/queue"
	logx "swarmbot/pkg/logx"
)

// Latest is the target keyword for the most recently registered queue.
// The registry refuses it as a queue name.
const Latest = queue.ReservedName

var ErrUsage = errors.New("usage")

// Registry is the part of queue.Registry the dispatcher drives.
type Registry interface {
	List() []queue.Info
	Launch(name string) error
	LaunchLatest() error
	Suspend(name string, d time.Duration) error
	SuspendLatest(d time.Duration) error
	Terminate(name string) error
	TerminateLatest() error
}

type Dispatcher struct {
	reg Registry
	log logx.Logger
}

func New(reg Registry, log logx.Logger) *Dispatcher {
	return &Dispatcher{reg: reg, log: log.With(logx.String("comp", "control"))}
}

func (d *Dispatcher) Tasks() []queue.Info { return d.reg.List() }

func (d *Dispatcher) Launch(target string) error {
	if isLatest(target) {
		return d.reg.LaunchLatest()
	}
	return d.reg.Launch(target)
}

// Send delivers a control message to target.
func (d *Dispatcher) Send(target string, c queue.Control) error {
	switch c.Kind() {
	case queue.ControlTerminate:
		if isLatest(target) {
			return d.reg.TerminateLatest()
		}
		return d.reg.Terminate(target)
	case queue.ControlSuspend:
		if isLatest(target) {
			return d.reg.SuspendLatest(c.Duration())
		}
		return d.reg.Suspend(target, c.Duration())
	default:
		return fmt.Errorf("invalid control message")
	}
}

func isLatest(target string) bool { return strings.EqualFold(strings.TrimSpace(target), Latest) }

// ParseSuspend reads a suspend argument: an integer is milliseconds (0 terminates),
// anything else must be a Go duration like "90s".
func ParseSuspend(arg string) (queue.Control, error) {
	arg = strings.TrimSpace(arg)
	if ms, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return queue.ControlFromMillis(ms)
	}
	dur, err := time.ParseDuration(arg)
	if err != nil {
		return queue.Control{}, fmt.Errorf("invalid suspend duration %q", arg)
	}
	if dur <= 0 {
		return queue.Control{}, fmt.Errorf("%w: %s", queue.ErrInvalidSuspend, dur)
	}
	return queue.Suspend(dur), nil
}

const help = `commands:
/tasks
/launch <name|latest>
/suspend <name|latest> <ms|duration>
/terminate <name|latest>`

// Handle executes one text command and returns the reply.
// A canceled ctx makes it return before any queue is touched.
func (d *Dispatcher) Handle(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	args := strings.Fields(text)
	if len(args) == 0 {
		return help, nil
	}
	cmd := strings.ToLower(strings.TrimPrefix(args[0], "/"))
	// "/launch@my_bot" in group chats.
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	args = args[1:]

	var err error
	reply := ""
	switch cmd {
	case "help", "start":
		return help, nil
	case "tasks", "list":
		return FormatTasks(d.reg.List()), nil
	case "launch":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: /launch <name|latest>", ErrUsage)
		}
		err = d.Launch(args[0])
		reply = "launched " + args[0]
	case "suspend":
		if len(args) != 2 {
			return "", fmt.Errorf("%w: /suspend <name|latest> <ms|duration>", ErrUsage)
		}
		var c queue.Control
		if c, err = ParseSuspend(args[1]); err != nil {
			return "", err
		}
		err = d.Send(args[0], c)
		if c.Kind() == queue.ControlTerminate {
			reply = "terminate sent to " + args[0]
		} else {
			reply = fmt.Sprintf("suspend %s sent to %s", c.Duration(), args[0])
		}
	case "terminate", "stop":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: /terminate <name|latest>", ErrUsage)
		}
		err = d.Send(args[0], queue.Terminate())
		reply = "terminate sent to " + args[0]
	default:
		return "", fmt.Errorf("%w: unknown command %q\n%s", ErrUsage, cmd, help)
	}
	if err != nil {
		d.log.Warn("command failed", logx.String("cmd", cmd), logx.Any("args", args), logx.Err(err))
		return "", err
	}
	d.log.Info("command", logx.String("cmd", cmd), logx.Any("args", args))
	return reply, nil
}

// FormatTasks renders one line per queue.
func FormatTasks(infos []queue.Info) string {
	if len(infos) == 0 {
		return "no tasks registered"
	}
	var b strings.Builder
	for i, in := range infos {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s [%s] %s %s runs=%d at=%s", in.Name, in.State, in.Action, in.Exec, in.Runs, in.ExecTime.Format(time.RFC3339))
		if in.Pending > 0 {
			fmt.Fprintf(&b, " pending=%d", in.Pending)
		}
		if in.Error != "" {
			b.WriteString(" err=" + in.Error)
		}
	}
	return b.String()
}
