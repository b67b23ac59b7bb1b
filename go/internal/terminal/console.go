// Package terminal provides an interactive console for running verification
// and workout sessions without a UI.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/mcdev12/ironclad/go/internal/verification"
	"github.com/mcdev12/ironclad/go/internal/workout"
)

// FlowSource creates flows; coach.App implements it
type FlowSource interface {
	NewVerificationFlow(ctx context.Context, identity string, onVerified func(identity string)) (*verification.Flow, error)
	NewSessionFlow(sessionID string, initialSeconds int, onCommitted func(sessionID string, seconds int)) (*workout.Flow, error)
	ForgetFlow(flowID uuid.UUID)
}

// Console dispatches typed commands to at most one verification flow and one
// session flow.
type Console struct {
	flows FlowSource
	out   io.Writer
	rl    *readline.Instance

	verify  *verification.Flow
	session *workout.Flow
}

// New creates a console reading from the terminal.
func New(flows FlowSource) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "coach> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{flows: flows, out: rl.Stdout(), rl: rl}, nil
}

// NewWithWriter creates a console without a terminal. Commands are fed through Execute.
func NewWithWriter(flows FlowSource, out io.Writer) *Console {
	return &Console{flows: flows, out: out}
}

// Stderr returns a writer that does not garble the prompt
func (c *Console) Stderr() io.Writer {
	if c.rl != nil {
		return c.rl.Stderr()
	}
	return c.out
}

func (c *Console) Verification() *verification.Flow { return c.verify }
func (c *Console) Session() *workout.Flow           { return c.session }

// Run reads commands until quit, EOF or ctx is cancelled.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	if c.rl == nil {
		return
	}
	defer c.rl.Close()
	defer c.closeFlows()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Execute(ctx, line) {
			cancel()
			return
		}
		c.rl.SetPrompt(c.prompt())
	}
}

// Execute runs one command line. It returns false when the console should exit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	// digits typed straight into the prompt go to the open verification
	if c.verify != nil && isDigits(cmd) && len(args) == 0 {
		c.cmdDigits(ctx, cmd)
		return true
	}

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "verify", "v":
		c.cmdVerify(ctx, args)
	case "digit", "d":
		c.cmdDigit(ctx, args)
	case "clear":
		c.cmdClear(ctx, args)
	case "resend":
		c.cmdResend(ctx)

	case "session", "s":
		c.cmdSession(args)
	case "start":
		c.sessionCall((*workout.Flow).Start)
	case "pause":
		c.sessionCall((*workout.Flow).Pause)
	case "resume":
		c.sessionCall((*workout.Flow).Resume)
	case "toggle", "t":
		c.sessionCall((*workout.Flow).Toggle)
	case "finish", "f":
		c.sessionCall(func(f *workout.Flow) error { return f.Finish(ctx) })

	case "status":
		c.cmdStatus(ctx)
	case "close":
		c.closeFlows()
		fmt.Fprintln(c.out, "Closed.")

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		c.closeFlows()
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) prompt() string {
	switch {
	case c.verify != nil && c.verify.State().Status != verification.StatusVerified:
		return "verify> "
	case c.session != nil && c.session.State().Status != workout.StatusCommitted:
		return "session> "
	default:
		return "coach> "
	}
}

func (c *Console) closeFlows() {
	if c.verify != nil {
		c.dropVerification()
	}
	if c.session != nil {
		c.dropSession()
	}
}

func (c *Console) dropVerification() {
	c.verify.Close()
	c.flows.ForgetFlow(c.verify.ID())
	c.verify = nil
}

func (c *Console) dropSession() {
	c.session.Close()
	c.flows.ForgetFlow(c.session.ID())
	c.session = nil
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Coach Console Commands:
  Verification:
    verify [email]       - Start verifying email (or resume the pending one)
    <digits>             - Type one digit into the focused slot, or paste a full code
    digit <pos> <d>      - Set slot pos (1-6) to digit d
    clear <pos>          - Clear slot pos (1-6)
    resend               - Request a new code once the cooldown ends

  Workout:
    session <id> [secs]  - Open workout id, optionally seeded with seconds already done
    start | pause | resume | toggle
    finish               - Stop the clock and log the workout

  General:
    status               - Show the open flows
    close                - Close the open flows
    quit                 - Exit`)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseSlot(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > verification.CodeLength {
		return 0, fmt.Errorf("slot must be 1-%d", verification.CodeLength)
	}
	return n - 1, nil
}
