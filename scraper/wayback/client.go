package wayback

import (
	"time"

	"github.com/go-resty/resty/v2"

	"pricing-history/utils"
)

// Options configures every session built by a Factory.
type Options struct {
	CDXEndpoint    string
	ArchiveBaseURL string
	UserAgent      string
	// Timeout bounds each single HTTP request.
	Timeout  time.Duration
	PageSize int
	// RawContent fetches snapshots in their id_ form.
	RawContent bool

	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	Logger *utils.Logger
}

// Factory builds per-task sessions that share one index Gate.
type Factory struct {
	opts Options
	gate *Gate
}

// NewFactory returns a Factory. Index queries from all its sessions pass
// through gate.
func NewFactory(opts Options, gate *Gate) *Factory {
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}
	if opts.PageSize < 1 {
		opts.PageSize = 5000
	}
	if gate == nil {
		gate = NewGate(1, 0)
	}
	return &Factory{opts: opts, gate: gate}
}

// Session is one worker's connection to the archive. It owns its own HTTP
// client and connection pool and must be closed when the task ends.
type Session struct {
	http   *resty.Client
	opts   Options
	gate   *Gate
	logger *utils.Logger
}

// NewSession creates a session with a fresh keep-alive client.
func (f *Factory) NewSession() *Session {
	client := resty.New()
	client.SetHeader("User-Agent", f.opts.UserAgent)
	client.SetLogger(restyLogger{f.opts.Logger})
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	return &Session{
		http:   client,
		opts:   f.opts,
		gate:   f.gate,
		logger: f.opts.Logger,
	}
}

// Close releases the session's idle connections.
func (s *Session) Close() error {
	s.http.GetClient().CloseIdleConnections()
	return nil
}

// restyLogger routes resty's own diagnostics through the run logger.
type restyLogger struct {
	l *utils.Logger
}

func (r restyLogger) Errorf(format string, v ...interface{}) { r.l.Error("[resty] "+format, v...) }
func (r restyLogger) Warnf(format string, v ...interface{})  { r.l.Warn("[resty] "+format, v...) }
func (r restyLogger) Debugf(format string, v ...interface{}) { r.l.Debug("[resty] "+format, v...) }
