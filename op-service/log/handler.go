package log

import (
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"reflect"
	"time"

	"github.com/holiman/uint256"

	elog "github.com/ethereum/go-ethereum/log"
)

const timeFormatMs = "2006-01-02T15:04:05.000-0700"

// JSONMsHandlerWithLevel is a JSON handler with millisecond timestamps and geth level names.
func JSONMsHandlerWithLevel(wr io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(wr, msHandlerOptions(level, false))
}

// LogfmtMsHandlerWithLevel is a logfmt handler with millisecond timestamps and geth level names.
func LogfmtMsHandlerWithLevel(wr io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(wr, msHandlerOptions(level, true))
}

func msHandlerOptions(level slog.Level, logfmt bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			return replaceAttr(attr, logfmt)
		},
	}
}

func replaceAttr(attr slog.Attr, logfmt bool) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		if attr.Value.Kind() == slog.KindTime {
			attr.Key = "t"
			if logfmt {
				attr.Value = slog.StringValue(attr.Value.Time().Format(timeFormatMs))
			}
			return attr
		}
	case slog.LevelKey:
		if l, ok := attr.Value.Any().(slog.Level); ok {
			return slog.String("lvl", elog.LevelString(l))
		}
	}
	if v, ok := formatValue(attr.Value.Any(), logfmt); ok {
		attr.Value = v
	}
	return attr
}

// formatValue renders big numbers and stringers as text, and nil pointers as "<nil>".
func formatValue(value any, logfmt bool) (slog.Value, bool) {
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return slog.StringValue("<nil>"), true
	}
	switch v := value.(type) {
	case time.Time:
		if logfmt {
			return slog.StringValue(v.Format(timeFormatMs)), true
		}
	case *big.Int:
		return slog.StringValue(v.String()), true
	case *uint256.Int:
		return slog.StringValue(v.Dec()), true
	case fmt.Stringer:
		return slog.StringValue(v.String()), true
	}
	return slog.Value{}, false
}
