package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/OCAP2/drone-tracker/internal/control"
	"github.com/OCAP2/drone-tracker/internal/dispatcher"
	"github.com/OCAP2/drone-tracker/pkg/core"
)

const helpText = `Commands:
  start                 take off (needs at least 20% battery)
  land                  land and stop the update loop
  status                show battery, position and flight status
  sensors               list sensors
  sensor <name> on|off  switch a sensor
  help                  show this text
  exit | quit           leave the program
`

// repl reads operator commands until exit, end of input or ctx is done.
// A cancelled context behaves like the exit command.
func (a *app) repl(ctx context.Context, in io.Reader) error {
	a.controller.ShowSensors(a.out)
	fmt.Fprintf(a.out, "Drone %s ready. Type help for commands.\n", a.drone.ID())

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Received signal, exiting")
			a.execute("exit")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if a.execute(line) {
				return nil
			}
		}
	}
}

// execute runs one command line and reports whether the program should stop.
func (a *app) execute(line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	var err error
	switch cmd := strings.ToLower(fields[0]); cmd {
	case "start":
		_, err = a.dispatcher.Dispatch(dispatcher.Event{Command: control.CmdStartFlight})
	case "land":
		_, err = a.dispatcher.Dispatch(dispatcher.Event{Command: control.CmdLand})
	case "status":
		var result any
		result, err = a.dispatcher.Dispatch(dispatcher.Event{Command: control.CmdStatus})
		if st, ok := result.(core.DroneState); ok {
			printStatus(a.out, st)
		}
	case "sensors":
		a.controller.ShowSensors(a.out)
	case "sensor":
		_, err = a.dispatcher.Dispatch(dispatcher.Event{Command: control.CmdSensorSet, Args: fields[1:]})
		if err == nil {
			a.controller.ShowSensors(a.out)
		}
	case "help", "?":
		fmt.Fprint(a.out, helpText)
	case "exit", "quit":
		_, err = a.dispatcher.Dispatch(dispatcher.Event{Command: control.CmdExit})
		quit = true
	default:
		fmt.Fprintf(a.out, "Unknown command %q. Type help for commands.\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
	}
	return quit
}

func printStatus(w io.Writer, st core.DroneState) {
	status := "Landed"
	if st.Flying {
		status = "Flying..."
	}
	fmt.Fprintf(w, "Status: %s\n", status)
	fmt.Fprintf(w, "Battery: %.1f%%\n", st.BatteryPercent)
	fmt.Fprintf(w, "Position: (%d, %d)\n", st.Position.X, st.Position.Y)
	if st.SessionID != "" {
		fmt.Fprintf(w, "Session: %s\n", st.SessionID)
	}
}
