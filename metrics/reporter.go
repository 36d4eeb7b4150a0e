package metrics

var _Reporters []Reporter

// Reporter defines the interface for metric reporting backends such as
// Prometheus or a plain log sink.
type Reporter interface {
	Report(r Record)
}

// SetMetricsReporters sets the global list of metric reporters. All metrics
// are forwarded to every registered reporter on update.
func SetMetricsReporters(reports []Reporter) {
	_Reporters = reports
}
