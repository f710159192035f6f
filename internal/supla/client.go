package supla

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/lesny8/supla-cloud/internal/schedule"
	logx "github.com/lesny8/supla-cloud/pkg/logx"
)

const serverHello = "SUPLA SERVER CTRL"

// Client talks to supla-server over its control socket. One connection per
// command keeps the client stateless; every call is bounded by the configured
// timeout and by ctx, whichever expires first.
type Client struct {
	socketPath string
	timeout    time.Duration
	log        logx.Logger
}

func NewClient(socketPath string, timeout time.Duration, log logx.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{socketPath: socketPath, timeout: timeout, log: log}
}

var _ Server = (*Client)(nil)

func (c *Client) ExecuteAction(ctx context.Context, userID int64, subject schedule.Subject, action schedule.Action, params map[string]string) (Outcome, error) {
	cmd, err := buildActionCommand(userID, subject, action, params)
	if err != nil {
		return OutcomeError, err
	}
	resp, err := c.command(ctx, cmd)
	if err != nil {
		return OutcomeUnreachable, err
	}
	if !strings.HasPrefix(resp, "OK:") {
		return OutcomeError, fmt.Errorf("server rejected %q: %q", cmd, resp)
	}
	if subject.SubjectType() == schedule.SubjectChannelGroup {
		// Group fan-out is fire-and-forget per member; the server acks the
		// command, not the devices.
		return OutcomeAcknowledgedWithoutConfirmation, nil
	}
	return OutcomeAcknowledged, nil
}

func (c *Client) IsDeviceConnected(ctx context.Context, userID, deviceID int64) (bool, error) {
	resp, err := c.command(ctx, fmt.Sprintf("IS-IODEV-CONNECTED:%d,%d", userID, deviceID))
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(resp, "CONNECTED:"), nil
}

// command dials the control socket, verifies the hello banner, sends one
// command line and returns the first response line.
func (c *Client) command(ctx context.Context, cmd string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return "", fmt.Errorf("dial supla-server: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	r := bufio.NewReader(conn)
	hello, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read hello: %w", err)
	}
	if !strings.HasPrefix(hello, serverHello) {
		return "", fmt.Errorf("unexpected hello %q", strings.TrimSpace(hello))
	}

	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return "", fmt.Errorf("write command: %w", err)
	}
	resp, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	c.log.Trace("supla-server command", logx.String("cmd", cmd), logx.String("resp", strings.TrimSpace(resp)))
	return strings.TrimSpace(resp), nil
}

// buildActionCommand renders the wire command for (subject, action, params).
// Params are assumed normalized by save-time validation.
func buildActionCommand(userID int64, subject schedule.Subject, action schedule.Action, params map[string]string) (string, error) {
	group := subject.SubjectType() == schedule.SubjectChannelGroup

	switch action {
	case schedule.ActionTurnOn, schedule.ActionOpen, schedule.ActionClose, schedule.ActionShut:
		return charValueCommand(userID, subject, group, "1"), nil
	case schedule.ActionTurnOff, schedule.ActionReveal:
		return charValueCommand(userID, subject, group, "0"), nil
	case schedule.ActionRevealPartially:
		pct, ok := params["percentage"]
		if !ok {
			return "", fmt.Errorf("%w: missing percentage", schedule.ErrInvalidActionParams)
		}
		return charValueCommand(userID, subject, group, pct), nil
	case schedule.ActionSetRGBW:
		color := params["color"]
		colorBrightness := params["color_brightness"]
		brightness := params["brightness"]
		if group {
			return fmt.Sprintf("SET-CG-RGBW-VALUE:%d,%d,%s,%s,%s",
				userID, subject.SubjectID(), color, colorBrightness, brightness), nil
		}
		return fmt.Sprintf("SET-RGBW-VALUE:%d,%d,%d,%s,%s,%s",
			userID, subject.DeviceID(), subject.SubjectID(), color, colorBrightness, brightness), nil
	}
	return "", fmt.Errorf("%w: unsupported action %q", schedule.ErrInvalidActionParams, action)
}

func charValueCommand(userID int64, subject schedule.Subject, group bool, value string) string {
	if group {
		return fmt.Sprintf("SET-CG-CHAR-VALUE:%d,%d,%s", userID, subject.SubjectID(), value)
	}
	return fmt.Sprintf("SET-CHAR-VALUE:%d,%d,%d,%s", userID, subject.DeviceID(), subject.SubjectID(), value)
}
