package tracing

import (
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

// ClientTimeout bounds outgoing webhook and search calls.
const ClientTimeout = 30 * time.Second

// ClientTransport opens a client span named after the target of each request that runs inside a trace.
// Requests without a span in their context are sent untouched.
type ClientTransport struct {
	Next http.RoundTripper
}

func (t *ClientTransport) next() http.RoundTripper {
	if t.Next == nil {
		return http.DefaultTransport
	}
	return t.Next
}

func (t *ClientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	parent := opentracing.SpanFromContext(req.Context())
	if parent == nil {
		return t.next().RoundTrip(req)
	}

	span := parent.Tracer().StartSpan(req.Method+" "+req.URL.Host+req.URL.Path, opentracing.ChildOf(parent.Context()),
		ext.SpanKindRPCClient)
	defer span.Finish()
	ext.HTTPUrl.Set(span, req.URL.String())
	ext.HTTPMethod.Set(span, req.Method)
	ext.PeerHostname.Set(span, req.URL.Hostname())

	outgoing := req.Clone(req.Context())
	_ = span.Tracer().Inject(span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(outgoing.Header))

	res, err := t.next().RoundTrip(outgoing)
	if err != nil {
		ext.LogError(span, err)
		return nil, err
	}
	ext.HTTPStatusCode.Set(span, uint16(res.StatusCode))
	if res.StatusCode >= http.StatusBadRequest {
		ext.Error.Set(span, true)
	}
	return res, nil
}

// NewTracingClient returns a http client whose requests join the caller's trace.
func NewTracingClient() *http.Client {
	return &http.Client{Transport: &ClientTransport{}, Timeout: ClientTimeout}
}
