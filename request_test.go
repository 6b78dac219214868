package apifetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	expectedKindMsg   = "Expected kind %s, got %s"
	expectedStatusMsg = "Expected status %d, got %d"
	expectedStateMsg  = "Expected state %s, got %s"
	requestErrorMsg   = "Expected *RequestError, got %T: %v"
)

// stubTransport answers every send with the given response or error.
func stubTransport(resp *Response, err error) Transport {
	return TransportFunc(func(_ context.Context, _ *Descriptor) (*Response, error) {
		return resp, err
	})
}

func okResponse(body string) *Response {
	return &Response{StatusCode: http.StatusOK, Status: "OK", Body: []byte(body)}
}

// stateRecorder collects OnStateChange notifications.
type stateRecorder[T any] struct {
	mu     sync.Mutex
	states []State
}

func (s *stateRecorder[T]) record(_ *Request[T], st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func asRequestError(t *testing.T, err error) *RequestError {
	t.Helper()
	var re *RequestError
	if !errors.As(err, &re) {
		t.Fatalf(requestErrorMsg, err, err)
	}
	return re
}

func TestFetchHTTPError(t *testing.T) {
	client := New(WithTransport(stubTransport(&Response{StatusCode: 500, Status: "Internal Server Error"}, nil)))

	var chainRan bool
	chain := Then(None(), func(_ context.Context, r *Response) (string, error) {
		chainRan = true
		return "", nil
	})

	rec := &stateRecorder[string]{}
	req := NewRequest(client, MethodGet, "http://example.test/x", chain, nil, &Options[string]{
		Callbacks: Callbacks[string]{OnStateChange: rec.record},
	})

	_, err := req.Fetch(context.Background())
	re := asRequestError(t, err)
	if re.Kind != KindHTTP {
		t.Errorf(expectedKindMsg, KindHTTP, re.Kind)
	}
	if re.Status != 500 {
		t.Errorf(expectedStatusMsg, 500, re.Status)
	}
	if re.StatusText != "Internal Server Error" {
		t.Errorf("Expected status text 'Internal Server Error', got %q", re.StatusText)
	}
	if chainRan {
		t.Error("Expected the chain not to run on an HTTP error")
	}
	if req.State() != StateError {
		t.Errorf(expectedStateMsg, StateError, req.State())
	}
	if len(rec.states) != 0 {
		t.Errorf("Expected no state change notifications, got %v", rec.states)
	}
}

func TestFetchNetworkError(t *testing.T) {
	errDial := errors.New("dial failed")
	client := New(WithTransport(stubTransport(nil, errDial)))

	req := NewRequest(client, MethodGet, "http://example.test/x", Text(), nil, nil)
	_, err := req.Fetch(context.Background())

	re := asRequestError(t, err)
	if re.Kind != KindNetwork {
		t.Errorf(expectedKindMsg, KindNetwork, re.Kind)
	}
	if re.Status != 0 {
		t.Errorf(expectedStatusMsg, 0, re.Status)
	}
	if !errors.Is(err, errDial) {
		t.Errorf("Expected error to wrap %v", errDial)
	}
	if req.State() != StateError {
		t.Errorf(expectedStateMsg, StateError, req.State())
	}
}

func TestFetchNilResponse(t *testing.T) {
	client := New(WithTransport(stubTransport(nil, nil)))

	req := NewRequest(client, MethodGet, "http://example.test/x", Text(), nil, nil)
	_, err := req.Fetch(context.Background())

	re := asRequestError(t, err)
	if re.Kind != KindNetwork {
		t.Errorf(expectedKindMsg, KindNetwork, re.Kind)
	}
	if !errors.Is(err, ErrNoResponse) {
		t.Errorf("Expected error to wrap %v", ErrNoResponse)
	}
	if req.State() != StateError {
		t.Errorf(expectedStateMsg, StateError, req.State())
	}
}

func TestFetchZeroChainTypeMismatch(t *testing.T) {
	client := New(WithTransport(stubTransport(okResponse("x"), nil)))

	var chain Chain[*Response, *Response, string]
	req := NewRequest(client, MethodGet, "http://example.test/x", chain, nil, nil)
	_, err := req.Fetch(context.Background())

	re := asRequestError(t, err)
	if re.Kind != KindFilter {
		t.Errorf(expectedKindMsg, KindFilter, re.Kind)
	}
	if !errors.Is(err, ErrChainType) {
		t.Errorf("Expected error to wrap %v", ErrChainType)
	}
}

func TestFetchFilterError(t *testing.T) {
	client := New(WithTransport(stubTransport(okResponse("{}"), nil)))

	chain := Then(None(), func(_ context.Context, _ *Response) (int, error) {
		return 0, errBoom
	})
	rec := &stateRecorder[int]{}
	req := NewRequest(client, MethodGet, "http://example.test/x", chain, nil, &Options[int]{
		Callbacks: Callbacks[int]{OnStateChange: rec.record},
	})

	_, err := req.Fetch(context.Background())
	re := asRequestError(t, err)
	if re.Kind != KindFilter {
		t.Errorf(expectedKindMsg, KindFilter, re.Kind)
	}
	if re.Status != 0 {
		t.Errorf(expectedStatusMsg, 0, re.Status)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("Expected error to wrap %v", errBoom)
	}
	if req.State() != StateError {
		t.Errorf(expectedStateMsg, StateError, req.State())
	}
	if len(rec.states) != 1 || rec.states[0] != StateFiltering {
		t.Errorf("Expected [FILTERING], got %v", rec.states)
	}
}

func TestFetchSuccess(t *testing.T) {
	client := New(WithTransport(stubTransport(okResponse(`{"name":"ada"}`), nil)))

	type user struct {
		Name string `json:"name"`
	}
	chain := Then(JSON[user](), func(_ context.Context, u user) (string, error) {
		return "hello " + u.Name, nil
	})

	rec := &stateRecorder[string]{}
	var started, steps int
	req := NewRequest(client, MethodGet, "http://example.test/user", chain, nil, &Options[string]{
		Callbacks: Callbacks[string]{
			OnStart:       func(*Request[string]) { started++ },
			OnStateChange: rec.record,
			OnFilterStep:  func(_ *Request[string], _, _ int) { steps++ },
		},
	})

	if req.State() != StatePending {
		t.Errorf(expectedStateMsg, StatePending, req.State())
	}

	out, err := req.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() returned error: %v", err)
	}
	if out != "hello ada" {
		t.Errorf("Expected 'hello ada', got %q", out)
	}
	if started != 1 {
		t.Errorf("Expected OnStart once, got %d", started)
	}
	if steps != 2 {
		t.Errorf("Expected 2 filter steps, got %d", steps)
	}
	want := []State{StateFiltering, StateSuccess}
	if len(rec.states) != len(want) || rec.states[0] != want[0] || rec.states[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, rec.states)
	}
}

func TestFetchOnce(t *testing.T) {
	client := New(WithTransport(stubTransport(okResponse("x"), nil)))
	req := NewRequest(client, MethodGet, "http://example.test", Text(), nil, nil)

	if _, err := req.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch() returned error: %v", err)
	}
	if _, err := req.Fetch(context.Background()); !errors.Is(err, ErrRequestReused) {
		t.Errorf("Expected ErrRequestReused, got %v", err)
	}
}

func TestFetchOnErrorReplacesGlobalHandler(t *testing.T) {
	var global, local int
	handler := &ErrorHandler{CatchAll: func(*RequestError) { global++ }}
	client := New(
		WithTransport(stubTransport(&Response{StatusCode: 404, Status: "Not Found"}, nil)),
		WithErrorHandler(handler),
	)

	_, err := Get(context.Background(), client, "http://example.test", Text(), &Options[string]{
		Callbacks: Callbacks[string]{
			OnError: func(_ *Request[string], err *RequestError, h *ErrorHandler) {
				local++
				if h != handler {
					t.Error("Expected the client's error handler to be passed along")
				}
			},
		},
	})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if local != 1 || global != 0 {
		t.Errorf("Expected local=1 global=0, got local=%d global=%d", local, global)
	}
}

func TestFetchOnErrorDelegates(t *testing.T) {
	var global int
	handler := &ErrorHandler{CatchAll: func(*RequestError) { global++ }}
	client := New(
		WithTransport(stubTransport(nil, errBoom)),
		WithErrorHandler(handler),
	)

	_, _ = Get(context.Background(), client, "http://example.test", Text(), &Options[string]{
		Callbacks: Callbacks[string]{
			OnError: func(_ *Request[string], err *RequestError, h *ErrorHandler) {
				h.Handle(err)
			},
		},
	})
	if global != 1 {
		t.Errorf("Expected delegated handler to run once, got %d", global)
	}
}

func TestFetchErrorMatchers(t *testing.T) {
	var calls []string
	handler := &ErrorHandler{
		CatchAll: func(*RequestError) { calls = append(calls, "all") },
		Catch: []ErrorMatcher{
			{HTTPCode: 404, Process: func(*RequestError) { calls = append(calls, "404") }},
			{HTTPCode: 500, Process: func(*RequestError) { calls = append(calls, "500") }},
			{Kind: KindHTTP, Process: func(*RequestError) { calls = append(calls, "http") }},
			{Kind: KindNetwork, Process: func(*RequestError) { calls = append(calls, "network") }},
			{Match: func(e *RequestError) bool { return e.Status >= 400 }, Process: func(*RequestError) { calls = append(calls, "predicate") }},
			{StatusText: "Gone", Process: func(*RequestError) { calls = append(calls, "gone") }},
		},
	}
	client := New(
		WithTransport(stubTransport(&Response{StatusCode: 404, Status: "Not Found"}, nil)),
		WithErrorHandler(handler),
	)

	if _, err := Get(context.Background(), client, "http://example.test", Text(), nil); err == nil {
		t.Fatal("Expected an error")
	}

	want := []string{"all", "404", "http", "predicate"}
	if len(calls) != len(want) {
		t.Fatalf("Expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, calls)
			break
		}
	}
}

func TestFetchErrorCarriesRequestContext(t *testing.T) {
	client := New(
		WithTransport(stubTransport(nil, errBoom)),
		WithRequestIDGenerator(func() string { return "req-1" }),
	)

	_, err := Post(context.Background(), client, "http://example.test/items", map[string]int{"a": 1}, Text(), nil)
	re := asRequestError(t, err)
	if re.RequestID != "req-1" {
		t.Errorf("Expected request ID req-1, got %q", re.RequestID)
	}
	if re.Method != MethodPost {
		t.Errorf("Expected method POST, got %s", re.Method)
	}
	if re.URL != "http://example.test/items" {
		t.Errorf("Expected URL to be recorded, got %q", re.URL)
	}
}

func TestFetchChainRecovery(t *testing.T) {
	client := New(WithTransport(stubTransport(okResponse("not json"), nil)))

	chain := JSON[map[string]int]().Fallback(map[string]int{"fallback": 1})
	out, err := Get(context.Background(), client, "http://example.test", chain, nil)
	if err != nil {
		t.Fatalf("Expected recovered chain, got error %v", err)
	}
	if out["fallback"] != 1 {
		t.Errorf("Expected fallback value, got %v", out)
	}
}

func TestFetchUpdateTicker(t *testing.T) {
	release := make(chan struct{})
	client := New(WithTransport(TransportFunc(func(ctx context.Context, _ *Descriptor) (*Response, error) {
		<-release
		return okResponse("done"), nil
	})))

	var updates atomic.Int32
	req := NewRequest(client, MethodGet, "http://example.test", Text(), nil, &Options[string]{
		UpdateInterval: 5 * time.Millisecond,
		Callbacks: Callbacks[string]{
			OnUpdate: func(_ *Request[string], elapsed time.Duration) {
				if elapsed <= 0 {
					t.Error("Expected positive elapsed time")
				}
				updates.Add(1)
			},
		},
	})

	go func() {
		time.Sleep(40 * time.Millisecond)
		close(release)
	}()

	if _, err := req.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch() returned error: %v", err)
	}
	if updates.Load() == 0 {
		t.Error("Expected at least one update while the request was pending")
	}

	// a tick that was already past its state check may still land
	time.Sleep(15 * time.Millisecond)
	settled := updates.Load()
	time.Sleep(30 * time.Millisecond)
	if got := updates.Load(); got != settled {
		t.Errorf("Expected updates to stop after completion, went from %d to %d", settled, got)
	}
}

func TestFetchAgainstServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != string(Bearer("token")) {
			t.Errorf("Expected bearer authorization, got %q", got)
		}
		if got := r.Header.Get("X-Trace"); got != "on" {
			t.Errorf("Expected X-Trace header, got %q", got)
		}
		w.Header().Set("Content-Type", contentTypeJSON)
		if _, err := w.Write([]byte(`[1,2,3]`)); err != nil {
			t.Fatalf(failedWriteResponseMsg, err)
		}
	}))
	defer server.Close()

	client := New(
		WithBaseURL(server.URL+"/api"),
		WithAuthorization(StaticAuthorization(Bearer("token"))),
		WithBeforeEachMatching(RequestMatcher{
			Endpoint: "/users",
			Process:  func(d *Descriptor) { d.Header.Set("X-Trace", "on") },
		}),
	)

	sum := Then(JSON[[]int](), func(_ context.Context, xs []int) (int, error) {
		total := 0
		for _, x := range xs {
			total += x
		}
		return total, nil
	})

	out, err := Get(context.Background(), client, "/users", sum, nil)
	if err != nil {
		t.Fatalf("Get() returned error: %v", err)
	}
	if out != 6 {
		t.Errorf("Expected 6, got %d", out)
	}

	_, err = Get(context.Background(), client, "/missing", sum, nil)
	if !IsKind(err, KindHTTP) {
		t.Errorf("Expected HTTP error, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StatePending:   "PENDING",
		StateFiltering: "FILTERING",
		StateSuccess:   "SUCCESS",
		StateError:     "ERROR",
		State(42):      "UNKNOWN",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	}
}

func TestStateActive(t *testing.T) {
	if !StatePending.Active() || !StateFiltering.Active() {
		t.Error("Expected PENDING and FILTERING to be active")
	}
	if StateSuccess.Active() || StateError.Active() {
		t.Error("Expected SUCCESS and ERROR to be terminal")
	}
}
