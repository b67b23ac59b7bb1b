package terminal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mcdev12/ironclad/go/internal/countdown"
	"github.com/mcdev12/ironclad/go/internal/verification"
	"github.com/mcdev12/ironclad/go/internal/workout"
)

func (c *Console) cmdVerify(ctx context.Context, args []string) {
	identity := ""
	if len(args) > 0 {
		identity = args[0]
	}

	flow, err := c.flows.NewVerificationFlow(ctx, identity, func(identity string) {
		fmt.Fprintf(c.out, "Verified %s. You're signed in.\n", identity)
	})
	if errors.Is(err, verification.ErrNoPendingIdentity) {
		fmt.Fprintln(c.out, "No email is waiting for verification. Use: verify <email>")
		return
	}
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	if c.verify != nil {
		c.dropVerification()
	}
	c.verify = flow
	fmt.Fprintf(c.out, "Enter the 6-digit code sent to %s\n", flow.Identity())
	c.printVerification(ctx)
}

func (c *Console) cmdDigits(ctx context.Context, digits string) {
	var err error
	if len(digits) == 1 {
		err = c.verify.EnterDigit(ctx, c.verify.State().Focus, digits)
	} else {
		err = c.verify.EnterCode(ctx, digits)
	}
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.printVerification(ctx)
}

func (c *Console) cmdDigit(ctx context.Context, args []string) {
	if c.verify == nil {
		fmt.Fprintln(c.out, "No verification open. Use: verify <email>")
		return
	}
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: digit <pos> <d>")
		return
	}
	slot, err := parseSlot(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if err := c.verify.EnterDigit(ctx, slot, args[1]); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.printVerification(ctx)
}

func (c *Console) cmdClear(ctx context.Context, args []string) {
	if c.verify == nil {
		fmt.Fprintln(c.out, "No verification open. Use: verify <email>")
		return
	}
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: clear <pos>")
		return
	}
	slot, err := parseSlot(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if err := c.verify.EnterDigit(ctx, slot, ""); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.printVerification(ctx)
}

func (c *Console) cmdResend(ctx context.Context) {
	if c.verify == nil {
		fmt.Fprintln(c.out, "No verification open. Use: verify <email>")
		return
	}
	if err := c.verify.Resend(ctx); err != nil {
		fmt.Fprintf(c.out, "Resend failed: %s\n", c.verify.State().LastError)
		return
	}
	fmt.Fprintln(c.out, "A new code is on its way.")
	c.printVerification(ctx)
}

func (c *Console) cmdSession(args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(c.out, "Usage: session <id> [seconds]")
		return
	}
	initial := 0
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			fmt.Fprintln(c.out, "Error: seconds must be a non-negative number")
			return
		}
		initial = n
	}

	flow, err := c.flows.NewSessionFlow(args[0], initial, func(sessionID string, seconds int) {
		fmt.Fprintf(c.out, "Workout %s logged: %s\n", sessionID, formatClock(seconds))
	})
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	if c.session != nil {
		c.dropSession()
	}
	c.session = flow
	c.printSession()
}

func (c *Console) sessionCall(fn func(*workout.Flow) error) {
	if c.session == nil {
		fmt.Fprintln(c.out, "No session open. Use: session <id>")
		return
	}
	if err := fn(c.session); err != nil {
		if msg := c.session.State().LastError; msg != "" {
			fmt.Fprintf(c.out, "Error: %s\n", msg)
		} else {
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
	c.printSession()
}

func (c *Console) cmdStatus(ctx context.Context) {
	if c.verify == nil && c.session == nil {
		fmt.Fprintln(c.out, "Nothing open.")
		return
	}
	if c.verify != nil {
		c.printVerification(ctx)
	}
	if c.session != nil {
		c.printSession()
	}
}

func (c *Console) printVerification(ctx context.Context) {
	st := c.verify.State()

	slots := make([]string, len(st.Digits))
	for i, d := range st.Digits {
		switch {
		case d != "":
			slots[i] = d
		case i == st.Focus:
			slots[i] = "^"
		default:
			slots[i] = "_"
		}
	}

	fmt.Fprintf(c.out, "[%s] %s  %s  %s\n",
		st.Status,
		strings.Join(slots, " "),
		describeResend(c.verify.ResendCountdown(ctx)),
		describeExpiry(c.verify.ExpiryCountdown(ctx)),
	)
	if st.LastError != "" {
		fmt.Fprintf(c.out, "  %s\n", st.LastError)
	}
}

func (c *Console) printSession() {
	st := c.session.State()
	fmt.Fprintf(c.out, "Workout %s [%s] %s\n", st.SessionID, st.Status, formatClock(st.TotalSeconds))
	if st.LastError != "" {
		fmt.Fprintf(c.out, "  %s\n", st.LastError)
	}
}

func describeResend(s countdown.State) string {
	if s.Elapsed {
		return "resend available"
	}
	return "resend in " + formatCountdown(s.RemainingSeconds)
}

func describeExpiry(s countdown.State) string {
	if s.Elapsed {
		return "code expired"
	}
	return "expires in " + formatCountdown(s.RemainingSeconds)
}

// formatCountdown renders m:ss
func formatCountdown(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// formatClock renders hh:mm:ss
func formatClock(seconds int) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
