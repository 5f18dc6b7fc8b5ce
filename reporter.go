package apiclient

import "go.uber.org/zap"

// ReportContext identifies the call site an error was observed at.
type ReportContext struct {
	Component string
	Operation string
}

// Reporter is the observability sink fed by the default response-error
// interceptor. Implementations are invoked on every failed attempt and must
// not panic.
type Reporter interface {
	Report(err error, rctx ReportContext)
}

// loggerReporter routes reports through the client's Logger.
type loggerReporter struct {
	logger Logger
}

func (r *loggerReporter) Report(err error, rctx ReportContext) {
	r.logger.Error("request failed",
		"component", rctx.Component,
		"operation", rctx.Operation,
		"error", err,
	)
}

// zapReporter reports straight to a zap logger.
type zapReporter struct {
	logger *zap.Logger
}

// NewZapReporter builds a Reporter on top of zap for use with WithReporter.
func NewZapReporter(l *zap.Logger) Reporter {
	return &zapReporter{logger: l}
}

func (r *zapReporter) Report(err error, rctx ReportContext) {
	r.logger.Error("request failed",
		zap.String("component", rctx.Component),
		zap.String("operation", rctx.Operation),
		zap.Error(err),
	)
}

// noopReporter drops every report.
type noopReporter struct{}

func (noopReporter) Report(error, ReportContext) {}
