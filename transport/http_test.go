package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kubedyn/kubedyn/kerrors"
)

func TestDoGet_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer abc123" {
			t.Errorf("missing/incorrect bearer header: %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"kind":"Pod"}`))
	}))
	defer srv.Close()

	exec := New(BearerToken(srv.URL, "abc123"))
	data, err := exec.DoGet(context.Background(), srv.URL+"/api/v1/pods/x")
	if err != nil {
		t.Fatalf("DoGet: %v", err)
	}
	if string(data) != `{"kind":"Pod"}` {
		t.Fatalf("unexpected body: %s", data)
	}
}

func TestDoGet_APIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":"Failure","message":"pods \"x\" not found","reason":"NotFound","code":404}`))
	}))
	defer srv.Close()

	exec := New(BearerToken(srv.URL, "abc123"))
	_, err := exec.DoGet(context.Background(), srv.URL+"/api/v1/pods/x")

	var kerr *kerrors.Error
	if !errors.As(err, &kerr) || kerr.Code != kerrors.CodeAPIFailure {
		t.Fatalf("expected ApiFailure, got %v", err)
	}
	if kerr.Reason != "NotFound" || kerr.HTTPStatus != 404 {
		t.Fatalf("unexpected status fields: %+v", kerr)
	}
}

func TestDoGet_NonJSONErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream connect error"))
	}))
	defer srv.Close()

	exec := New(BearerToken(srv.URL, "abc123"))
	_, err := exec.DoGet(context.Background(), srv.URL+"/api/v1/pods/x")

	var kerr *kerrors.Error
	if !errors.As(err, &kerr) || kerr.Code != kerrors.CodeTransport {
		t.Fatalf("expected Transport, got %v", err)
	}
}

func TestOpenStream_StreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{\"type\":\"ADDED\",\"object\":{}}\n"))
	}))
	defer srv.Close()

	exec := New(BearerToken(srv.URL, "abc123"))
	stream, err := exec.OpenStream(context.Background(), srv.URL+"/api/v1/watch/pods")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	buf := make([]byte, 256)
	n, _ := stream.Read(buf)
	if n == 0 {
		t.Fatal("expected to read watch stream body")
	}
}
