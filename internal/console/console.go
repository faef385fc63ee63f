package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nerrad567/gray-logic-gateway/internal/command"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

// maxLineSize bounds one console line.
const maxLineSize = 64 * 1024

// ErrQuit is returned by Run when the operator types quit.
var ErrQuit = errors.New("console: quit requested")

// Gateway is the surface the console drives.
type Gateway interface {
	ListOnline() []device.Identity
	GetLog(imei string) (string, bool, error)
	SendCommand(cmd command.Command) bool
}

// Logger is the logging surface used by Console.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Console reads operator lines and acts on the gateway.
//
// Built-ins are list, log <imei>, help, quit and exit. Every other non-empty
// line is parsed as a command ("123,456:reboot" or a bare broadcast
// payload) and submitted. A payload spelled like a built-in is sent with
// an explicit target list, e.g. "ALL:help" or "123:list".
type Console struct {
	in     io.Reader
	out    io.Writer
	gw     Gateway
	logger Logger
}

// New creates a console reading in and writing replies to out.
func New(in io.Reader, out io.Writer, gw Gateway, logger Logger) *Console {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Console{in: in, out: out, gw: gw, logger: logger}
}

// Run processes lines until input ends, ctx is cancelled, or quit.
//
// End of input returns nil; the gateway keeps running without a console.
// The reader goroutine may outlive Run when ctx is cancelled, since a
// blocked stdin read cannot be interrupted.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(c.in)
		scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("reading console input: %w", err)
			}
			c.logger.Info("console input closed")
			return nil
		case line := <-lines:
			if err := c.Exec(line); err != nil {
				return err
			}
		}
	}
}

// Exec handles one line. It returns ErrQuit for quit and nil otherwise.
func (c *Console) Exec(line string) error {
	line = strings.TrimSpace(line)
	verb, arg, _ := strings.Cut(line, " ")

	switch verb {
	case "":
		return nil
	case "quit", "exit":
		return ErrQuit
	case "help":
		c.printHelp()
	case "list":
		c.list()
	case "log":
		c.showLog(strings.TrimSpace(arg))
	default:
		c.send(line)
	}
	return nil
}

func (c *Console) list() {
	online := c.gw.ListOnline()
	if len(online) == 0 {
		c.printf("no devices online\n")
		return
	}
	for _, id := range online {
		c.printf("%s\t%s\tfver=%s\tcsq=%d\n", id.IMEI, id.ICCID, id.FirmwareVersion, id.SignalQuality)
	}
	c.printf("%d online\n", len(online))
}

func (c *Console) showLog(imei string) {
	if imei == "" {
		c.printf("usage: log <imei>\n")
		return
	}
	body, found, err := c.gw.GetLog(imei)
	switch {
	case err != nil:
		c.logger.Warn("console log read failed", "imei", imei, "error", err)
		c.printf("error: %v\n", err)
	case !found:
		c.printf("no log for %s\n", imei)
	default:
		c.printf("%s", body)
		if !strings.HasSuffix(body, "\n") {
			c.printf("\n")
		}
	}
}

func (c *Console) send(line string) {
	cmd := command.Parse(line)
	if strings.TrimSpace(cmd.Payload) == "" {
		c.printf("empty command payload\n")
		return
	}
	if c.gw.SendCommand(cmd) {
		c.printf("sent %s\n", cmd)
		return
	}
	c.printf("sent %s (no active receivers)\n", cmd)
}

func (c *Console) printHelp() {
	c.printf(`commands:
  list                 show online devices
  log <imei>           print a device's data log
  <ids>:<payload>      send payload to devices, e.g. 123,456:reboot
  <payload>            send payload to every device
  ALL:<payload>        broadcast a payload named like a console command, e.g. ALL:help
  help                 this text
  quit, exit           stop the gateway
`)
}

func (c *Console) printf(format string, args ...any) {
	//nolint:errcheck // Console output is best-effort
	fmt.Fprintf(c.out, format, args...)
}
