// Package logging forwards server and client log records to the console and,
// when tracing is configured, to the active OpenTelemetry span.
package logging

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"roundrobin/onboarding-service/internal/auth"
)

type Fields map[string]any

type Sink interface {
	Info(ctx context.Context, source, message string, fields Fields)
	Error(ctx context.Context, source string, err error, fields Fields)
}

// New returns the sink for the process. Traced selects the span-aware sink.
func New(service string, traced bool) Sink {
	console := NewConsole(service, log.New(os.Stderr, "", log.LstdFlags))
	if traced {
		return &SpanSink{next: console}
	}
	return console
}

type Console struct {
	service string
	logger  *log.Logger
}

func NewConsole(service string, logger *log.Logger) *Console {
	if logger == nil {
		logger = log.Default()
	}
	return &Console{service: service, logger: logger}
}

func (c *Console) Info(_ context.Context, source, message string, fields Fields) {
	c.logger.Printf("level=info service=%s source=%s msg=%q%s", c.service, source, message, format(fields))
}

func (c *Console) Error(_ context.Context, source string, err error, fields Fields) {
	if err == nil || auth.IsAuthError(err) {
		return
	}
	c.logger.Printf("level=error service=%s source=%s error=%q%s", c.service, source, err.Error(), format(fields))
}

func format(fields Fields) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, fields[key])
	}
	return b.String()
}
