package tracing_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"pneumatic/infra/tracing"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/mocktracer"
)

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestClientTransport(t *testing.T) {
	RegisterTestingT(t)

	tracer := mocktracer.New()
	var received http.Header
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
		if strings.HasSuffix(r.URL.Path, "/broken") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()
	hookURL, _ := url.Parse(hook.URL)

	post := func(client *http.Client, target string, traced bool) (*http.Response, error) {
		ctx := context.Background()
		var parent opentracing.Span
		if traced {
			parent = tracer.StartSpan("deliver webhook")
			defer parent.Finish()
			ctx = opentracing.ContextWithSpan(ctx, parent)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(`{}`))
		Expect(err).To(BeNil())
		return client.Do(req)
	}

	t.Run("should send untraced requests untouched", func(t *testing.T) {
		tracer.Reset()
		res, err := post(tracing.NewTracingClient(), hook.URL+"/hooks", false)
		Expect(err).To(BeNil())
		Expect(res.StatusCode).To(Equal(http.StatusNoContent))
		Expect(received.Get("Mockpfx-Ids-Traceid")).To(BeEmpty())
		Expect(tracer.FinishedSpans()).To(BeEmpty())
	})

	t.Run("should open client spans and propagate them", func(t *testing.T) {
		tracer.Reset()
		res, err := post(tracing.NewTracingClient(), hook.URL+"/hooks", true)
		Expect(err).To(BeNil())
		Expect(res.StatusCode).To(Equal(http.StatusNoContent))

		spans := tracer.FinishedSpans()
		Expect(len(spans)).To(Equal(2))
		child, parent := spans[0], spans[1]
		Expect(child.OperationName).To(Equal("POST " + hookURL.Host + "/hooks"))
		Expect(child.ParentID).To(Equal(parent.SpanContext.SpanID))
		Expect(child.SpanContext.TraceID).To(Equal(parent.SpanContext.TraceID))
		Expect(child.Tags()).To(Equal(map[string]interface{}{
			"span.kind":        ext.SpanKindRPCClientEnum,
			"http.url":         hook.URL + "/hooks",
			"http.method":      http.MethodPost,
			"peer.hostname":    hookURL.Hostname(),
			"http.status_code": uint16(http.StatusNoContent),
		}))
		Expect(received.Get("Mockpfx-Ids-Spanid")).ToNot(BeEmpty())
	})

	t.Run("should flag error responses", func(t *testing.T) {
		tracer.Reset()
		res, err := post(tracing.NewTracingClient(), hook.URL+"/broken", true)
		Expect(err).To(BeNil())
		Expect(res.StatusCode).To(Equal(http.StatusBadGateway))

		child := tracer.FinishedSpans()[0]
		Expect(child.Tag("http.status_code")).To(Equal(uint16(http.StatusBadGateway)))
		Expect(child.Tag("error")).To(Equal(true))
	})

	t.Run("should record transport failures", func(t *testing.T) {
		tracer.Reset()
		client := &http.Client{Transport: &tracing.ClientTransport{Next: failingTransport{}}}
		res, err := post(client, "http://hooks.local/deliveries", true)
		Expect(res).To(BeNil())
		var urlErr *url.Error
		Expect(errors.As(err, &urlErr)).To(BeTrue())
		Expect(urlErr.Err.Error()).To(Equal("connection refused"))

		spans := tracer.FinishedSpans()
		Expect(len(spans)).To(Equal(2))
		Expect(spans[0].OperationName).To(Equal("POST hooks.local/deliveries"))
		Expect(spans[0].Tag("error")).To(Equal(true))
		Expect(spans[0].Logs()).ToNot(BeEmpty())
	})
}
