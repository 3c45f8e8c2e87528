package logger

import (
	"bytes"
	"fmt"
	"github.com/logrusorgru/aurora/v3"
)

type Printer interface {
	Output(calldepth int, s string) error
}

type Logger interface {
	Successf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Error(err error)
	SQL(query string, args ...interface{})
}

// Options control what gets printed besides successes, warnings and errors,
// Trace prints errors with their stack (%+v)
type Options struct {
	SQL   bool
	Debug bool
	Trace bool
}

type ColoredLogger struct {
	printer Printer
	opts    Options
}

type BWLogger struct {
	printer Printer
	opts    Options
}

var _ Logger = (*ColoredLogger)(nil)
var _ Logger = (*BWLogger)(nil)

func NewColorLogger(p Printer, opts Options) *ColoredLogger {
	return &ColoredLogger{printer: p, opts: opts}
}

func NewBWLogger(p Printer, opts Options) *BWLogger {
	return &BWLogger{printer: p, opts: opts}
}

func (cl *ColoredLogger) Debugf(format string, args ...interface{}) {
	if cl.opts.Debug {
		msg := fmt.Sprintf("upgradedb debug: "+format, args...)
		_ = cl.printer.Output(2, aurora.Yellow(msg).String())
	}
}

func (cl *ColoredLogger) Successf(format string, args ...interface{}) {
	msg := fmt.Sprintf("upgradedb: "+format, args...)
	_ = cl.printer.Output(2, aurora.Green(msg).String())
}

func (cl *ColoredLogger) Warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf("upgradedb warning: "+format, args...)
	_ = cl.printer.Output(2, aurora.Magenta(msg).String())
}

func (cl *ColoredLogger) Error(err error) {
	_ = cl.printer.Output(2, aurora.Red(formatError(err, cl.opts.Trace)).String())
}

func (cl *ColoredLogger) SQL(query string, args ...interface{}) {
	if cl.opts.SQL {
		_ = cl.printer.Output(2, aurora.Gray(15, formatSQL(query, args...)).String())
	}
}

func (bwl *BWLogger) Debugf(format string, args ...interface{}) {
	if bwl.opts.Debug {
		_ = bwl.printer.Output(2, fmt.Sprintf("upgradedb debug: "+format, args...))
	}
}

func (bwl *BWLogger) Successf(format string, args ...interface{}) {
	_ = bwl.printer.Output(2, fmt.Sprintf("upgradedb: "+format, args...))
}

func (bwl *BWLogger) Warnf(format string, args ...interface{}) {
	_ = bwl.printer.Output(2, fmt.Sprintf("upgradedb warning: "+format, args...))
}

func (bwl *BWLogger) Error(err error) {
	_ = bwl.printer.Output(2, formatError(err, bwl.opts.Trace))
}

func (bwl *BWLogger) SQL(query string, args ...interface{}) {
	if bwl.opts.SQL {
		_ = bwl.printer.Output(2, formatSQL(query, args...))
	}
}

func formatError(err error, trace bool) string {
	if trace {
		return fmt.Sprintf("upgradedb error: %+v", err)
	}

	return fmt.Sprintf("upgradedb error: %s", err.Error())
}

func formatSQL(query string, args ...interface{}) string {
	var buf bytes.Buffer
	buf.WriteString("upgradedb running sql: ")
	buf.WriteString(query)

	if len(args) == 0 {
		return buf.String()
	}

	buf.WriteString("\nquery parameters: ")

	for i := range args {
		if i+1 < len(args) {
			buf.WriteString(fmt.Sprintf("{%#v}, ", args[i]))
		} else {
			buf.WriteString(fmt.Sprintf("{%#v}", args[i]))
		}
	}

	return buf.String()
}
