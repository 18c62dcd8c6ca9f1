package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusStyles = map[statusKind]struct {
	label string
	color text.Color
}{
	statusInfo:  {"INFO", text.FgBlue},
	statusOK:    {"OK", text.FgGreen},
	statusWarn:  {"WARN", text.FgYellow},
	statusError: {"ERROR", text.FgRed},
}

const statusLabelWidth = 24

// console writes command output, colouring it only when out is a terminal.
type console struct {
	out   io.Writer
	color bool
}

func newConsole(out io.Writer) *console {
	return &console{out: out, color: isTerminal(out)}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (c *console) paint(s string, colors ...text.Color) string {
	if !c.color {
		return s
	}
	return text.Colors(colors).Sprint(s)
}

func (c *console) println(args ...any) {
	fmt.Fprintln(c.out, args...)
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// section prints a titled rule.
func (c *console) section(title string) {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	c.println(c.paint(line, text.FgBlue, text.Bold))
	c.println(c.paint(strings.Repeat("-", len(line)), text.FgBlue))
}

// status prints "  label:  [KIND] message" aligned on the label column.
func (c *console) status(label string, kind statusKind, message string) {
	style := statusStyles[kind]
	line := fmt.Sprintf("  %-*s [%s]", statusLabelWidth, label+":", style.label)
	if message != "" {
		line += " " + message
	}
	c.println(c.paint(line, style.color))
}

// table renders rows under headers. Columns listed in rightAligned (zero
// based) are right aligned, which suits counts and sizes.
func (c *console) table(headers []string, rows [][]string, rightAligned ...int) {
	if len(headers) == 0 {
		return
	}
	tw := table.NewWriter()
	style := table.StyleRounded
	if c.color {
		style.Color.Header = text.Colors{text.Bold}
	}
	tw.SetStyle(style)

	tw.AppendHeader(toRow(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(toRow(row, len(headers)))
	}

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, col := range rightAligned {
		configs = append(configs, table.ColumnConfig{
			Number:      col + 1,
			Align:       text.AlignRight,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)
	c.println(tw.Render())
}

func toRow(values []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range width {
		if i < len(values) {
			row[i] = values[i]
		} else {
			row[i] = ""
		}
	}
	return row
}
