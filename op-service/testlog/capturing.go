package testlog

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// CapturedAttributes forms a chain of inherited attributes, to traverse on captured log records.
type CapturedAttributes struct {
	Parent     *CapturedAttributes
	Attributes []slog.Attr
}

// Attrs calls f on each Attr until f returns false.
func (r *CapturedAttributes) Attrs(f func(slog.Attr) bool) bool {
	for _, a := range r.Attributes {
		if !f(a) {
			return false
		}
	}
	if r.Parent != nil {
		return r.Parent.Attrs(f)
	}
	return true
}

// CapturedRecord is a log record with the attributes inherited from the logger that emitted it.
type CapturedRecord struct {
	Parent *CapturedAttributes
	*slog.Record
}

// Attrs calls f on the record attributes, then the inherited ones, until f returns false.
func (r *CapturedRecord) Attrs(f func(slog.Attr) bool) {
	searching := true
	r.Record.Attrs(func(a slog.Attr) bool {
		searching = f(a)
		return searching
	})
	if searching && r.Parent != nil {
		r.Parent.Attrs(f)
	}
}

func (r *CapturedRecord) AttrValue(name string) (v any) {
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == name {
			v = a.Value.Any()
			return false
		}
		return true
	})
	return
}

// CapturingHandler captures all log records and forwards them to a delegate.
// Handlers derived with WithAttrs share the captured records.
type CapturingHandler struct {
	handler slog.Handler
	mu      *sync.Mutex
	logs    *[]*CapturedRecord
	attrs   *CapturedAttributes
}

var _ slog.Handler = (*CapturingHandler)(nil)

func NewCapturingHandler(delegate slog.Handler) *CapturingHandler {
	return &CapturingHandler{handler: delegate, mu: new(sync.Mutex), logs: new([]*CapturedRecord)}
}

func (c *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	c.mu.Lock()
	*c.logs = append(*c.logs, &CapturedRecord{Parent: c.attrs, Record: &r})
	c.mu.Unlock()
	return c.handler.Handle(ctx, r)
}

func (c *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CapturingHandler{
		handler: c.handler.WithAttrs(attrs),
		mu:      c.mu,
		logs:    c.logs,
		attrs:   &CapturedAttributes{Parent: c.attrs, Attributes: attrs},
	}
}

func (c *CapturingHandler) WithGroup(name string) slog.Handler {
	return &CapturingHandler{
		handler: c.handler.WithGroup(name),
		mu:      c.mu,
		logs:    c.logs,
		attrs:   c.attrs,
	}
}

func (c *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return c.handler.Enabled(ctx, level)
}

func (c *CapturingHandler) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.logs = (*c.logs)[:0]
}

type LogFilter func(record *CapturedRecord) bool

func NewLevelFilter(level slog.Level) LogFilter {
	return func(r *CapturedRecord) bool {
		return r.Level == level
	}
}

func NewMessageFilter(message string) LogFilter {
	return func(r *CapturedRecord) bool {
		return r.Message == message
	}
}

func NewAttributesFilter(key, value string) LogFilter {
	return func(r *CapturedRecord) bool {
		found := false
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == key && a.Value.String() == value {
				found = true
				return false
			}
			return true
		})
		return found
	}
}

func NewErrContainsFilter(errMessage string) LogFilter {
	return func(r *CapturedRecord) bool {
		found := false
		r.Attrs(func(a slog.Attr) bool {
			if err, ok := a.Value.Any().(error); ok && a.Key == "err" && strings.Contains(err.Error(), errMessage) {
				found = true
				return false
			}
			return true
		})
		return found
	}
}

// FindLog returns the first record matching all filters, or nil.
func (c *CapturingHandler) FindLog(filters ...LogFilter) *CapturedRecord {
	if logs := c.FindLogs(filters...); len(logs) > 0 {
		return logs[0]
	}
	return nil
}

// FindLogs returns every record matching all filters, in emission order.
func (c *CapturingHandler) FindLogs(filters ...LogFilter) []*CapturedRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*CapturedRecord
outer:
	for _, record := range *c.logs {
		for _, filter := range filters {
			if !filter(record) {
				continue outer
			}
		}
		out = append(out, record)
	}
	return out
}
