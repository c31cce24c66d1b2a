package upstream

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"liverymarket/internal/config"

	"github.com/sirupsen/logrus"
)

type recordedCall struct {
	function string
	params   json.RawMessage
	header   http.Header
	query    string
}

// fakeBackend answers cloud-script calls by function name.
type fakeBackend struct {
	mu       sync.Mutex
	calls    []recordedCall
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FunctionName      string          `json:"FunctionName"`
		FunctionParameter json.RawMessage `json:"FunctionParameter"`
	}
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{
		function: body.FunctionName,
		params:   body.FunctionParameter,
		header:   r.Header.Clone(),
		query:    r.URL.RawQuery,
	})
	handler, ok := f.handlers[body.FunctionName]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	handler(w, r)
}

func (f *fakeBackend) callCount(function string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.function == function {
			n++
		}
	}
	return n
}

func (f *fakeBackend) lastCall(function string) (recordedCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].function == function {
			return f.calls[i], true
		}
	}
	return recordedCall{}, false
}

func respond(status int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func newTestClient(t *testing.T, backend *fakeBackend, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(&config.UpstreamConfig{
		BaseURL:            srv.URL,
		RequestTimeout:     timeout,
		StabilizationDelay: time.Millisecond,
	}, logger)
}

const grantedItemsBody = `{"code":200,"status":"OK","data":{"FunctionResult":{"grantedItems":[{"ItemInstanceId":"abc","ItemId":"livery-42"}]}}}`

func TestExecuteSendsProtocolConstants(t *testing.T) {
	backend := &fakeBackend{handlers: map[string]func(http.ResponseWriter, *http.Request){
		FunctionGetUserData: respond(http.StatusOK, `{"data":{"PlayFabId":"PF1"}}`),
	}}
	client := newTestClient(t, backend, time.Second)

	if _, err := client.ValidateCredential(context.Background(), "token-1"); err != nil {
		t.Fatalf("ValidateCredential() error = %v", err)
	}

	call, ok := backend.lastCall(FunctionGetUserData)
	if !ok {
		t.Fatal("no GetUserData call recorded")
	}
	if call.query != "sdk=UnitySDK-2.212.250428&engine=6000.1.5f1&platform=Android" {
		t.Errorf("query = %q", call.query)
	}
	wantHeaders := map[string]string{
		"User-Agent":             "UnityPlayer/6000.1.5f1 (UnityWebRequest/1.0, libcurl/8.10.1-DEV)",
		"Accept-Encoding":        "deflate, gzip",
		"Content-Type":           "application/json",
		"X-ReportErrorAsSuccess": "true",
		"X-PlayFabSDK":           "UnitySDK-2.212.250428",
		"X-Authorization":        "token-1",
		"X-Unity-Version":        "6000.1.5f1",
	}
	for name, want := range wantHeaders {
		if got := call.header.Get(name); got != want {
			t.Errorf("header %s = %q, want %q", name, got, want)
		}
	}
	if string(call.params) != `{"Keys":["profile"]}` {
		t.Errorf("FunctionParameter = %s, want {\"Keys\":[\"profile\"]}", call.params)
	}
}

func TestValidateCredential(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		wantID string
	}{
		{"ok", http.StatusOK, `{"data":{"PlayFabId":"ABC123"}}`, "ABC123"},
		{"unauthorized", http.StatusUnauthorized, `{"error":"NotAuthenticated"}`, ""},
		{"server error", http.StatusInternalServerError, ``, ""},
		{"missing id", http.StatusOK, `{"data":{}}`, ""},
		{"malformed body", http.StatusOK, `not json`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{handlers: map[string]func(http.ResponseWriter, *http.Request){
				FunctionGetUserData: respond(tt.status, tt.body),
			}}
			client := newTestClient(t, backend, time.Second)

			id, err := client.ValidateCredential(context.Background(), "tok")
			if tt.wantID != "" {
				if err != nil || id != tt.wantID {
					t.Fatalf("ValidateCredential() = %q, %v, want %q", id, err, tt.wantID)
				}
				return
			}
			if !errors.Is(err, ErrInvalidOrUnreachable) {
				t.Fatalf("ValidateCredential() error = %v, want ErrInvalidOrUnreachable", err)
			}
		})
	}
}

func TestValidateCredentialEmptySkipsRequest(t *testing.T) {
	backend := &fakeBackend{}
	client := newTestClient(t, backend, time.Second)

	if _, err := client.ValidateCredential(context.Background(), "   "); !errors.Is(err, ErrEmptyCredential) {
		t.Fatalf("ValidateCredential() error = %v, want ErrEmptyCredential", err)
	}
	if n := backend.callCount(FunctionGetUserData); n != 0 {
		t.Fatalf("GetUserData calls = %d, want 0", n)
	}
}

func TestValidateCredentialUnreachable(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client := NewClient(&config.UpstreamConfig{
		BaseURL:        "http://127.0.0.1:1",
		RequestTimeout: time.Second,
	}, logger)

	if _, err := client.ValidateCredential(context.Background(), "tok"); !errors.Is(err, ErrInvalidOrUnreachable) {
		t.Fatalf("ValidateCredential() error = %v, want ErrInvalidOrUnreachable", err)
	}
}

func TestInjectSuccess(t *testing.T) {
	backend := &fakeBackend{handlers: map[string]func(http.ResponseWriter, *http.Request){
		FunctionGrantItems:   respond(http.StatusOK, grantedItemsBody),
		FunctionUploadCustom: respond(http.StatusOK, `{"data":{}}`),
	}}
	client := newTestClient(t, backend, time.Second)

	outcome, err := client.Inject(context.Background(), "livery-42", "tok")
	if err != nil {
		t.Fatalf("Inject() error = %v", err)
	}
	if outcome.ItemInstanceID != "abc" || outcome.ItemID != "livery-42" || outcome.Layout != "grantedItems" {
		t.Errorf("Inject() = %+v", outcome)
	}

	grant, _ := backend.lastCall(FunctionGrantItems)
	if string(grant.params) != `{"itemIds":["livery-42"]}` {
		t.Errorf("grant params = %s", grant.params)
	}
	custom, _ := backend.lastCall(FunctionUploadCustom)
	if string(custom.params) != `{"itemInstanceId":"abc","itemId":"livery-42"}` {
		t.Errorf("customize params = %s", custom.params)
	}
}

func compressed(encoding, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		var zw io.WriteCloser
		switch encoding {
		case "gzip":
			zw = gzip.NewWriter(&buf)
		case "deflate":
			zw = zlib.NewWriter(&buf)
		}
		_, _ = io.WriteString(zw, body)
		_ = zw.Close()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", encoding)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

func TestInjectCompressedResponses(t *testing.T) {
	corrupt := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "not gzip at all")
	}

	tests := []struct {
		name    string
		grant   func(http.ResponseWriter, *http.Request)
		wantErr error
	}{
		{"gzip", compressed("gzip", grantedItemsBody), nil},
		{"deflate", compressed("deflate", grantedItemsBody), nil},
		{"corrupt gzip", corrupt, ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{handlers: map[string]func(http.ResponseWriter, *http.Request){
				FunctionGrantItems:   tt.grant,
				FunctionUploadCustom: compressed("gzip", `{"data":{}}`),
			}}
			client := newTestClient(t, backend, time.Second)

			outcome, err := client.Inject(context.Background(), "livery-42", "tok")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Inject() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Inject() error = %v", err)
			}
			if outcome.ItemInstanceID != "abc" {
				t.Errorf("ItemInstanceID = %q, want abc", outcome.ItemInstanceID)
			}
		})
	}
}

func TestInjectExtractionLayouts(t *testing.T) {
	tests := []struct {
		name         string
		result       string
		wantInstance string
		wantItem     string
		wantLayout   string
	}{
		{
			name:         "grantedItems preferred over flat fields",
			result:       `{"itemInstanceId":"flat-1","itemId":"flat-item","grantedItems":[{"ItemInstanceId":"gi-1","ItemId":"gi-item"}]}`,
			wantInstance: "gi-1", wantItem: "gi-item", wantLayout: "grantedItems",
		},
		{
			name:         "ItemGrantResults",
			result:       `{"ItemGrantResults":[{"ItemInstanceId":"igr-1","ItemId":"igr-item"}]}`,
			wantInstance: "igr-1", wantItem: "igr-item", wantLayout: "ItemGrantResults",
		},
		{
			name:         "flat fields",
			result:       `{"itemInstanceId":"flat-1","itemId":"flat-item"}`,
			wantInstance: "flat-1", wantItem: "flat-item", wantLayout: "flat",
		},
		{
			name:         "empty grantedItems falls through",
			result:       `{"grantedItems":[],"itemInstanceId":"flat-2"}`,
			wantInstance: "flat-2", wantItem: "livery-7", wantLayout: "flat",
		},
		{
			name:         "instance id only falls back to catalog id",
			result:       `{"grantedItems":[{"ItemInstanceId":"gi-2"}]}`,
			wantInstance: "gi-2", wantItem: "livery-7", wantLayout: "grantedItems",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{handlers: map[string]func(http.ResponseWriter, *http.Request){
				FunctionGrantItems:   respond(http.StatusOK, `{"data":{"FunctionResult":`+tt.result+`}}`),
				FunctionUploadCustom: respond(http.StatusOK, `{}`),
			}}
			client := newTestClient(t, backend, time.Second)

			outcome, err := client.Inject(context.Background(), "livery-7", "tok")
			if err != nil {
				t.Fatalf("Inject() error = %v", err)
			}
			if outcome.ItemInstanceID != tt.wantInstance || outcome.ItemID != tt.wantItem || outcome.Layout != tt.wantLayout {
				t.Errorf("Inject() = %+v, want instance %q item %q layout %q",
					outcome, tt.wantInstance, tt.wantItem, tt.wantLayout)
			}
		})
	}
}

func TestInjectGrantFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantKind  error
		wantPhase string
	}{
		{"http error", http.StatusBadRequest, `{}`, ErrGrantFailed, PhaseGrant},
		{"undecodable body", http.StatusOK, `<html>`, ErrGrantFailed, PhaseGrant},
		{"cloud script error", http.StatusOK, `{"data":{"Error":{"Error":"JavascriptException","Message":"boom"}}}`, ErrGrantFailed, PhaseGrant},
		{"no instance id", http.StatusOK, `{"data":{"FunctionResult":{"grantedItems":[{"ItemId":"x"}]}}}`, ErrMissingInstanceID, PhaseExtract},
		{"null result", http.StatusOK, `{"data":{"FunctionResult":null}}`, ErrMissingInstanceID, PhaseExtract},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{handlers: map[string]func(http.ResponseWriter, *http.Request){
				FunctionGrantItems:   respond(tt.status, tt.body),
				FunctionUploadCustom: respond(http.StatusOK, `{}`),
			}}
			client := newTestClient(t, backend, time.Second)

			_, err := client.Inject(context.Background(), "livery-1", "tok")
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("Inject() error = %v, want %v", err, tt.wantKind)
			}
			var injErr *InjectionError
			if !errors.As(err, &injErr) || injErr.Phase != tt.wantPhase {
				t.Fatalf("Inject() error = %#v, want phase %q", err, tt.wantPhase)
			}
			if IsPartial(err) {
				t.Error("IsPartial() = true, want false")
			}
			if n := backend.callCount(FunctionUploadCustom); n != 0 {
				t.Errorf("customize calls = %d, want 0", n)
			}
		})
	}
}

func TestInjectCustomizeFailureIsPartial(t *testing.T) {
	backend := &fakeBackend{handlers: map[string]func(http.ResponseWriter, *http.Request){
		FunctionGrantItems:   respond(http.StatusOK, grantedItemsBody),
		FunctionUploadCustom: respond(http.StatusInternalServerError, `{"secret":"do-not-leak"}`),
	}}
	client := newTestClient(t, backend, time.Second)

	_, err := client.Inject(context.Background(), "livery-42", "tok")
	if !errors.Is(err, ErrCustomizeFailed) {
		t.Fatalf("Inject() error = %v, want ErrCustomizeFailed", err)
	}
	if !IsPartial(err) {
		t.Fatal("IsPartial() = false, want true")
	}
	var injErr *InjectionError
	errors.As(err, &injErr)
	if injErr.Status != http.StatusInternalServerError || injErr.ItemInstanceID != "abc" {
		t.Errorf("InjectionError = %+v", injErr)
	}
	if got := err.Error(); got != "item granted but customize request failed (HTTP 500)" {
		t.Errorf("Error() = %q", got)
	}

	t.Run("script error with status 200", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"cloud script error", `{"code":200,"data":{"Error":{"Error":"JavascriptException","Message":"boom"}}}`},
			{"undecodable body", `<html>`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				backend := &fakeBackend{handlers: map[string]func(http.ResponseWriter, *http.Request){
					FunctionGrantItems:   respond(http.StatusOK, grantedItemsBody),
					FunctionUploadCustom: respond(http.StatusOK, tt.body),
				}}
				client := newTestClient(t, backend, time.Second)

				_, err := client.Inject(context.Background(), "livery-42", "tok")
				if !errors.Is(err, ErrCustomizeFailed) {
					t.Fatalf("Inject() error = %v, want ErrCustomizeFailed", err)
				}
				if !IsPartial(err) {
					t.Error("IsPartial() = false, want true")
				}
				var injErr *InjectionError
				if errors.As(err, &injErr) && injErr.ItemInstanceID != "abc" {
					t.Errorf("ItemInstanceID = %q, want abc", injErr.ItemInstanceID)
				}
			})
		}
	})
}

func TestInjectTimeout(t *testing.T) {
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}

	t.Run("grant", func(t *testing.T) {
		backend := &fakeBackend{handlers: map[string]func(http.ResponseWriter, *http.Request){
			FunctionGrantItems: slow,
		}}
		client := newTestClient(t, backend, 50*time.Millisecond)

		_, err := client.Inject(context.Background(), "livery-1", "tok")
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("Inject() error = %v, want ErrTimeout", err)
		}
		if IsPartial(err) {
			t.Error("IsPartial() = true, want false")
		}
	})

	t.Run("customize", func(t *testing.T) {
		backend := &fakeBackend{handlers: map[string]func(http.ResponseWriter, *http.Request){
			FunctionGrantItems:   respond(http.StatusOK, grantedItemsBody),
			FunctionUploadCustom: slow,
		}}
		client := newTestClient(t, backend, 50*time.Millisecond)

		_, err := client.Inject(context.Background(), "livery-42", "tok")
		if !errors.Is(err, ErrCustomizeFailed) || !errors.Is(err, ErrTimeout) {
			t.Fatalf("Inject() error = %v, want ErrCustomizeFailed wrapping ErrTimeout", err)
		}
	})
}

func TestInjectIgnoresCancelAfterGrant(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backend := &fakeBackend{handlers: map[string]func(http.ResponseWriter, *http.Request){
		FunctionGrantItems: respond(http.StatusOK, grantedItemsBody),
		FunctionUploadCustom: func(w http.ResponseWriter, r *http.Request) {
			cancel()
			time.Sleep(20 * time.Millisecond)
			respond(http.StatusOK, `{}`)(w, r)
		},
	}}
	client := newTestClient(t, backend, time.Second)

	if _, err := client.Inject(ctx, "livery-42", "tok"); err != nil {
		t.Fatalf("Inject() error = %v, want success despite cancel", err)
	}
}
