package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/p1sim/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const setpointTimeout = 2 * time.Second

// Console reads one power setpoint (kW) per line and applies it through the master actor.
type Console struct {
	in          io.Reader
	out         io.Writer
	rootContext *actor.RootContext
	masterActor *actor.PID
	logger      *zap.Logger
}

func NewConsole(in io.Reader, out io.Writer, rootContext *actor.RootContext, masterActor *actor.PID, logger *zap.Logger) *Console {
	return &Console{
		in:          in,
		out:         out,
		rootContext: rootContext,
		masterActor: masterActor,
		logger:      logger.With(zap.String("adapter", "console")),
	}
}

// Run blocks until the input is exhausted or ctx is cancelled between lines.
func (c *Console) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		c.handleLine(scanner.Text())
	}
	return scanner.Err()
}

func (c *Console) handleLine(line string) {
	power, err := domain.ParseSetpoint(line)
	if err != nil {
		c.logger.Debug("invalid setpoint", zap.Error(err))
		fmt.Fprintln(c.out, "Enter a numeric value")
		return
	}
	res, err := c.rootContext.RequestFuture(c.masterActor, domain.SetPowerRequest{
		Power:  power,
		Source: "console",
	}, setpointTimeout).Result()
	if err == nil {
		if resp, ok := res.(domain.SetPowerResponse); ok {
			err = resp.GetResponseError()
		} else {
			err = fmt.Errorf("unexpected response %T", res)
		}
	}
	if err != nil {
		c.logger.Error("setpoint rejected", zap.Error(err))
		fmt.Fprintf(c.out, "Could not set base load: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Base load set to %s kW\n", formatKW(power))
}

// formatKW prints the shortest exact decimal, keeping one fractional digit for whole numbers.
func formatKW(power float64) string {
	s := strconv.FormatFloat(power, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
