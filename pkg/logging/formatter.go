// Package logging provides the console formatter and logger setup shared by
// the walletctl binary and the storage layer.
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Fields shown first and highlighted, after time, level and message.
var priorityFields = []string{
	"connector_id",
	"address",
	"chain_id",
	"state",
	"code",
	"error",
}

type ColoredJSONFormatter struct {
	// Include timestamp in the output
	TimestampFormat string
	// Customize field sorting
	SortingFunc func([]string) []string
	// Disable colors when not in terminal
	DisableColors bool
}

func NewColoredJSONFormatter() *ColoredJSONFormatter {
	return &ColoredJSONFormatter{
		TimestampFormat: time.RFC3339,
		SortingFunc:     defaultFieldSorting,
	}
}

func (f *ColoredJSONFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	if f.SortingFunc != nil {
		keys = f.SortingFunc(keys)
	} else {
		sort.Strings(keys)
	}

	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	levelColor := f.color(levelAttribute(entry.Level)...)
	timeColor := f.color(color.FgYellow)
	keyColor := f.color(color.FgCyan)
	importantColor := f.color(color.FgGreen)
	valueColor := f.color(color.FgWhite)

	fmt.Fprintf(b, "%s ", timeColor.Sprint(entry.Time.Format(f.TimestampFormat)))
	fmt.Fprintf(b, "%s ", levelColor.Sprintf("%-7s", strings.ToUpper(entry.Level.String())))
	b.WriteString(levelColor.Sprint(entry.Message))

	for _, k := range keys {
		kc := keyColor
		if isImportantField(k) {
			kc = importantColor
		}
		b.WriteByte(' ')
		b.WriteString(kc.Sprintf("%s=", k))
		b.WriteString(valueColor.Sprint(formatValue(entry.Data[k])))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *ColoredJSONFormatter) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if f.DisableColors {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	return c
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	case fmt.Stringer:
		return fmt.Sprintf("%q", v.String())
	default:
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(jsonBytes)
	}
}

func levelAttribute(level logrus.Level) []color.Attribute {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return []color.Attribute{color.FgBlue}
	case logrus.InfoLevel:
		return []color.Attribute{color.FgGreen}
	case logrus.WarnLevel:
		return []color.Attribute{color.FgYellow}
	case logrus.ErrorLevel:
		return []color.Attribute{color.FgRed}
	case logrus.FatalLevel, logrus.PanicLevel:
		return []color.Attribute{color.FgRed, color.Bold}
	default:
		return []color.Attribute{color.FgWhite}
	}
}

func isImportantField(field string) bool {
	return priority(field) != 0
}

func priority(field string) int {
	for i, f := range priorityFields {
		if f == field {
			return i + 1
		}
	}
	return 0
}

func defaultFieldSorting(keys []string) []string {
	sort.Slice(keys, func(i, j int) bool {
		iPriority := priority(keys[i])
		jPriority := priority(keys[j])
		if iPriority != 0 && jPriority != 0 {
			return iPriority < jPriority
		}
		if iPriority != 0 {
			return true
		}
		if jPriority != 0 {
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}

// NewLogger returns a logger writing to out with the colored formatter at
// the named level. Unknown levels fall back to info and are reported.
func NewLogger(out io.Writer, level string, disableColors bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)

	formatter := NewColoredJSONFormatter()
	formatter.DisableColors = disableColors
	log.SetFormatter(formatter)

	if parsed, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	} else {
		log.SetLevel(logrus.InfoLevel)
		if level != "" {
			log.WithFields(logrus.Fields{
				"attempted_level": level,
				"default_level":   "INFO",
			}).Warn("Invalid log level specified, defaulting to INFO")
		}
	}
	return log
}
