package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"v2x-sim/internal/message"
	"v2x-sim/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

var kindColors = map[string]string{
	string(message.KindCAM):            colorGray,
	string(message.KindMCMIntent):      colorCyan,
	string(message.KindMCMRequest):     colorYellow,
	string(message.KindMCMResponse):    colorGreen,
	string(message.KindMCMTermination): colorMagenta,
}

func kindColor(kind string) string {
	if c, ok := kindColors[kind]; ok {
		return c
	}
	return colorBlue
}

func eventColor(event string) string {
	switch event {
	case telemetry.EventConflict, telemetry.EventActionSuppressed:
		return colorRed
	case telemetry.EventActionApplied, telemetry.EventRestored:
		return colorGreen
	case telemetry.EventTermination, telemetry.EventSessionClosed:
		return colorMagenta
	default:
		return colorCyan
	}
}

// StdoutWriter prints events to STDOUT, colourised on a terminal and as
// JSON lines otherwise.
type StdoutWriter struct {
	out      io.Writer
	colorize bool
	showCAM  bool
	settings []Setting
	once     sync.Once
}

// NewStdoutWriter picks the colour renderer when STDOUT is a terminal.
func NewStdoutWriter(settings []Setting, showCAM bool) *StdoutWriter {
	return &StdoutWriter{
		out:      os.Stdout,
		colorize: term.IsTerminal(int(os.Stdout.Fd())),
		showCAM:  showCAM,
		settings: settings,
	}
}

// NewJSONStdoutWriter always prints JSON lines.
func NewJSONStdoutWriter(showCAM bool) *StdoutWriter {
	return &StdoutWriter{out: os.Stdout, showCAM: showCAM}
}

func (w *StdoutWriter) printOverview() {
	if len(w.settings) == 0 {
		return
	}
	fmt.Fprintln(w.out, "Simulation Configuration:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	for _, s := range w.settings {
		fmt.Fprintf(tw, "%s:\t%s\n", s.Name, s.Value)
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

func (w *StdoutWriter) printJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteMessage prints an outbound message.
func (w *StdoutWriter) WriteMessage(row telemetry.MessageRow) error {
	if row.Kind == string(message.KindCAM) && !w.showCAM {
		return nil
	}
	if !w.colorize {
		return w.printJSON(row)
	}
	w.once.Do(w.printOverview)
	status := colorGreen + "ok" + colorReset
	if !row.Delivered {
		status = colorRed + "dropped" + colorReset
	}
	fmt.Fprintf(w.out, "%s[%s t=%.1f]%s %s%-15s%s station=%d entity=%s reason=%s",
		colorGray, row.Timestamp.Format(time.RFC3339), row.SimTime, colorReset,
		kindColor(row.Kind), row.Kind, colorReset,
		row.StationID, row.Entity, row.Reason)
	if row.ManoeuvreID != 0 {
		fmt.Fprintf(w.out, " manoeuvre=%d", row.ManoeuvreID)
	}
	fmt.Fprintf(w.out, " %s\n", status)
	return nil
}

// WriteMessages prints several messages.
func (w *StdoutWriter) WriteMessages(rows []telemetry.MessageRow) error {
	for _, r := range rows {
		_ = w.WriteMessage(r)
	}
	return nil
}

// WriteNegotiation prints a negotiation step.
func (w *StdoutWriter) WriteNegotiation(row telemetry.NegotiationRow) error {
	if !w.colorize {
		return w.printJSON(row)
	}
	w.once.Do(w.printOverview)
	fmt.Fprintf(w.out, "%s[%s t=%.1f]%s %sNEG %s%s station=%d",
		colorGray, row.Timestamp.Format(time.RFC3339), row.SimTime, colorReset,
		eventColor(row.Event), row.Event, colorReset, row.StationID)
	if row.VehicleID != "" {
		fmt.Fprintf(w.out, " vehicle=%s", row.VehicleID)
	}
	if row.ManoeuvreID != 0 {
		fmt.Fprintf(w.out, " manoeuvre=%d", row.ManoeuvreID)
	}
	if row.Strategy != "" {
		fmt.Fprintf(w.out, " strategy=%s", row.Strategy)
	}
	if row.Detail != "" {
		fmt.Fprintf(w.out, " %s%s%s", colorGray, row.Detail, colorReset)
	}
	fmt.Fprintln(w.out)
	return nil
}
