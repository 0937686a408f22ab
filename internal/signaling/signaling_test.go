package signaling

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pongnet/internal/protocol"
	"github.com/1ureka/pongnet/internal/relay"
)

const testPoll = 2 * time.Millisecond

// countingRelay wraps the in-memory relay and counts requests per path.
type countingRelay struct {
	*httptest.Server
	relay *relay.Server

	mu     sync.Mutex
	counts map[string]int
	total  atomic.Int64
}

func newCountingRelay(t *testing.T) *countingRelay {
	t.Helper()
	r := &countingRelay{relay: relay.NewServer(relay.Options{}), counts: make(map[string]int)}
	r.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.counts[req.Method+" "+req.URL.Path]++
		r.mu.Unlock()
		r.total.Add(1)
		r.relay.ServeHTTP(w, req)
	}))
	t.Cleanup(r.Close)
	return r
}

func (r *countingRelay) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func newTransport(r *countingRelay) *HTTPTransport {
	return NewHTTPTransport(r.URL, Options{PollInterval: testPoll, RequestTimeout: time.Second})
}

var (
	testOffer  = webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\ns=offer\r\n"}
	testAnswer = webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\ns=answer\r\n"}
)

func ptr[T any](v T) *T { return &v }

func TestOfferAnswerExchange(t *testing.T) {
	r := newCountingRelay(t)
	host, client := newTransport(r), newTransport(r)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	registered := make(chan string, 1)
	type result struct {
		ans Answer
		err error
	}
	done := make(chan result, 1)
	go func() {
		ans, err := host.SendOffer(ctx, "room1", testOffer, OnRegistered(func(name string) { registered <- name }))
		done <- result{ans, err}
	}()

	var assigned string
	select {
	case assigned = <-registered:
	case <-ctx.Done():
		t.Fatal("offer never registered")
	}
	if assigned != "room1_client" {
		t.Fatalf("OnRegistered got %q, want room1_client", assigned)
	}

	offer, err := client.GetOffer(ctx, "room1")
	if err != nil {
		t.Fatalf("GetOffer: %v", err)
	}
	if offer.SelfName != "room1_client" || offer.Description != testOffer {
		t.Fatalf("GetOffer = %+v", offer)
	}

	if err := client.SendAnswer(ctx, "room1", testAnswer); err != nil {
		t.Fatalf("SendAnswer: %v", err)
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("SendOffer: %v", res.err)
	}
	if res.ans.RemoteName != "room1_client" || res.ans.Description != testAnswer {
		t.Fatalf("SendOffer = %+v", res.ans)
	}
	if n := r.count("GET " + protocol.PathAnswer); n < 1 {
		t.Fatalf("answer polled %d times", n)
	}
}

func TestSendOfferNameTaken(t *testing.T) {
	r := newCountingRelay(t)
	tr := newTransport(r)
	if _, err := r.relay.Store().RegisterOffer("room1", "x"); err != nil {
		t.Fatal(err)
	}

	_, err := tr.SendOffer(context.Background(), "room1", testOffer)
	var relayErr *RelayError
	if !errors.As(err, &relayErr) || !errors.Is(err, ErrNameTaken) {
		t.Fatalf("SendOffer on taken name = %v, want RelayError/ErrNameTaken", err)
	}
	if n := r.count("GET " + protocol.PathAnswer); n != 0 {
		t.Fatalf("rejected registration still polled %d times", n)
	}
}

func TestGetOfferNotFound(t *testing.T) {
	r := newCountingRelay(t)
	tr := newTransport(r)

	_, err := tr.GetOffer(context.Background(), "nonexistent")
	var nf *NotFoundError
	if !errors.As(err, &nf) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetOffer(nonexistent) = %v, want NotFoundError", err)
	}
	if n := r.count("GET " + protocol.PathOffer); n != 1 {
		t.Fatalf("GetOffer made %d requests, want exactly 1", n)
	}

	// The caller may retry once the host shows up.
	if _, err := r.relay.Store().RegisterOffer("nonexistent", `{"type":"offer","sdp":"v=0"}`); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.GetOffer(context.Background(), "nonexistent"); err != nil {
		t.Fatalf("retry after registration: %v", err)
	}
}

func TestSendAnswerUnknownHost(t *testing.T) {
	tr := newTransport(newCountingRelay(t))
	err := tr.SendAnswer(context.Background(), "nobody", testAnswer)
	var relayErr *RelayError
	if !errors.As(err, &relayErr) || relayErr.Status != http.StatusNotFound {
		t.Fatalf("SendAnswer to unknown host = %v, want RelayError (404)", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected POST reported as NotFoundError: %v", err)
	}
}

func TestConflictSentinels(t *testing.T) {
	r := newCountingRelay(t)
	tr := newTransport(r)
	ctx := context.Background()
	if _, err := r.relay.Store().RegisterOffer("room1", "offer"); err != nil {
		t.Fatal(err)
	}

	if err := tr.SendAnswer(ctx, "room1", testAnswer); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	err := tr.SendAnswer(ctx, "room1", testAnswer)
	if !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("second answer = %v, want ErrAlreadyAnswered", err)
	}
	if errors.Is(err, ErrNameTaken) {
		t.Fatalf("second answer matched ErrNameTaken: %v", err)
	}

	_, err = tr.SendOffer(ctx, "room1", testOffer)
	if !errors.Is(err, ErrNameTaken) || errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("taken name = %v, want only ErrNameTaken", err)
	}
}

func TestNetworkError(t *testing.T) {
	r := newCountingRelay(t)
	url := r.URL
	r.Close()

	tr := NewHTTPTransport(url, Options{PollInterval: testPoll, RequestTimeout: 200 * time.Millisecond})
	_, err := tr.GetOffer(context.Background(), "room1")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("GetOffer on closed relay = %T %v, want NetworkError", err, err)
	}
}

func TestCandidateListenerDeliversInOrderAndStops(t *testing.T) {
	r := newCountingRelay(t)
	host, client := newTransport(r), newTransport(r)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := r.relay.Store().RegisterOffer("room1", "offer"); err != nil {
		t.Fatal(err)
	}

	sent := []webrtc.ICECandidateInit{
		{Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 50000 typ host", SDPMid: ptr("0"), SDPMLineIndex: ptr(uint16(0))},
		{Candidate: "candidate:2 1 udp 1694498815 203.0.113.7 61000 typ srflx raddr 10.0.0.1 rport 50000", SDPMid: ptr("0"), SDPMLineIndex: ptr(uint16(0)), UsernameFragment: ptr("uf")},
	}
	for i := range sent {
		if err := host.SendIceCandidate(ctx, "room1", &sent[i]); err != nil {
			t.Fatalf("SendIceCandidate: %v", err)
		}
	}
	if err := host.SendIceCandidate(ctx, "room1", nil); err != nil {
		t.Fatalf("SendIceCandidate(end): %v", err)
	}
	// Anything after the sentinel is never delivered.
	if err := r.relay.Store().AddCandidate("room1", `{"candidate":"late"}`); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got []webrtc.ICECandidateInit
	if err := client.RegisterIceCandidateListener(ctx, "room1", func(c webrtc.ICECandidateInit) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("RegisterIceCandidateListener: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == len(sent) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("received %d of %d candidates", n, len(sent))
		case <-time.After(testPoll):
		}
	}

	// Let a few intervals pass: no further polling after the sentinel.
	time.Sleep(20 * testPoll)
	before := r.count("GET " + protocol.PathIceCandidates)
	time.Sleep(20 * testPoll)
	if after := r.count("GET " + protocol.PathIceCandidates); after != before {
		t.Fatalf("listener kept polling after end: %d -> %d requests", before, after)
	}
	if before != 1 {
		t.Fatalf("listener made %d requests, want 1", before)
	}

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(got, sent) {
		t.Fatalf("candidates mismatch:\n got  %+v\n want %+v", got, sent)
	}
}

func TestCandidateListenerSwallowsNotFound(t *testing.T) {
	r := newCountingRelay(t)
	tr := newTransport(r)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	delivered := make(chan webrtc.ICECandidateInit, 1)
	if err := tr.RegisterIceCandidateListener(ctx, "late_host", func(c webrtc.ICECandidateInit) { delivered <- c }); err != nil {
		t.Fatal(err)
	}

	// The owner is unknown for a while; the listener keeps polling.
	for r.count("GET "+protocol.PathIceCandidates) < 3 {
		time.Sleep(testPoll)
	}
	if _, err := r.relay.Store().RegisterOffer("late_host", "offer"); err != nil {
		t.Fatal(err)
	}
	if err := r.relay.Store().AddCandidate("late_host", `{"candidate":"candidate:9 1 udp 1 10.0.0.9 9 typ host"}`); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-delivered:
		if c.Candidate != "candidate:9 1 udp 1 10.0.0.9 9 typ host" {
			t.Fatalf("delivered %+v", c)
		}
	case <-ctx.Done():
		t.Fatal("candidate never delivered")
	}
}

func TestDuplicateListenerRejected(t *testing.T) {
	r := newCountingRelay(t)
	tr := newTransport(r)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	noop := func(webrtc.ICECandidateInit) {}
	if err := tr.RegisterIceCandidateListener(ctx, "room1", noop); err != nil {
		t.Fatal(err)
	}
	if err := tr.RegisterIceCandidateListener(ctx, "room1", noop); !errors.Is(err, ErrListenerRegistered) {
		t.Fatalf("second registration = %v, want ErrListenerRegistered", err)
	}
	if err := tr.RegisterIceCandidateListener(ctx, "room2", noop); err != nil {
		t.Fatalf("listener for another name: %v", err)
	}
}

func TestListenerSlotReleasedOnCancel(t *testing.T) {
	tr := newTransport(newCountingRelay(t))
	noop := func(webrtc.ICECandidateInit) {}

	first, cancel := context.WithCancel(context.Background())
	if err := tr.RegisterIceCandidateListener(first, "room1", noop); err != nil {
		t.Fatal(err)
	}
	cancel()

	second, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	if err := tr.RegisterIceCandidateListener(second, "room1", noop); err != nil {
		t.Fatalf("register after cancel = %v, want nil", err)
	}
	if err := tr.RegisterIceCandidateListener(second, "room1", noop); !errors.Is(err, ErrListenerRegistered) {
		t.Fatalf("live duplicate = %v, want ErrListenerRegistered", err)
	}
}

// TestCancelStopsPolling checks that cancelling mid-poll issues no further
// relay calls within a polling interval.
func TestCancelStopsPolling(t *testing.T) {
	r := newCountingRelay(t)
	tr := NewHTTPTransport(r.URL, Options{PollInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := tr.SendOffer(ctx, "room1", testOffer)
		done <- err
	}()
	if err := tr.RegisterIceCandidateListener(ctx, "room1_client", func(webrtc.ICECandidateInit) {}); err != nil {
		t.Fatal(err)
	}

	for r.count("GET "+protocol.PathAnswer) < 2 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("SendOffer after cancel = %v, want context.Canceled", err)
	}

	// Allow any request already on the wire to land, then watch a full interval.
	time.Sleep(5 * time.Millisecond)
	before := r.total.Load()
	time.Sleep(40 * time.Millisecond)
	if after := r.total.Load(); after != before {
		t.Fatalf("relay calls after cancel: %d -> %d", before, after)
	}
}

// fault answers a relay request in place of the relay.
type fault func(w http.ResponseWriter, req *http.Request)

func gatewayUnavailable(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
}

func htmlPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte("<html>maintenance</html>"))
}

func dropConnection(w http.ResponseWriter, _ *http.Request) {
	conn, _, err := w.(http.Hijacker).Hijack()
	if err == nil {
		conn.Close()
	}
}

func relayFailure(status int) fault {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(`{"success":false,"error":"x"}`))
	}
}

// newFaultyRelay serves the in-memory relay, except that the first n GETs
// to path are answered by f. hits counts those GETs.
func newFaultyRelay(t *testing.T, path string, n int64, f fault) (rs *relay.Server, url string, hits *atomic.Int64) {
	t.Helper()
	rs = relay.NewServer(relay.Options{})
	hits = new(atomic.Int64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodGet && req.URL.Path == path && hits.Add(1) <= n {
			f(w, req)
			return
		}
		rs.ServeHTTP(w, req)
	}))
	t.Cleanup(srv.Close)
	return rs, srv.URL, hits
}

func TestAnswerPollPropagation(t *testing.T) {
	cases := []struct {
		name    string
		fault   fault
		wantErr bool
	}{
		{"gateway 503", gatewayUnavailable, false},
		{"dropped connection", dropConnection, false},
		{"non-envelope body", htmlPage, false},
		{"explicit failure", relayFailure(http.StatusOK), true},
		{"explicit failure with 500", relayFailure(http.StatusInternalServerError), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rs, url, hits := newFaultyRelay(t, protocol.PathAnswer, 1, tc.fault)
			tr := NewHTTPTransport(url, Options{PollInterval: testPoll, RequestTimeout: time.Second})
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			// The answer lands shortly after the faulty first poll.
			answer, _ := protocol.EncodeDescription(testAnswer)
			registered := OnRegistered(func(string) {
				time.AfterFunc(50*time.Millisecond, func() { rs.Store().SetAnswer("room1", answer) })
			})

			ans, err := tr.SendOffer(ctx, "room1", testOffer, registered)
			if hits.Load() < 1 {
				t.Fatal("fault never served")
			}
			if tc.wantErr {
				var relayErr *RelayError
				if !errors.As(err, &relayErr) || !relayErr.Explicit || relayErr.Message != "x" {
					t.Fatalf("SendOffer = %v, want explicit RelayError \"x\"", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SendOffer = %v, want the answer after a retry", err)
			}
			if ans.Description != testAnswer {
				t.Fatalf("answer = %+v", ans.Description)
			}
		})
	}
}

func TestCandidateListenerSurvivesFaults(t *testing.T) {
	cases := []struct {
		name  string
		fault fault
	}{
		{"gateway 503", gatewayUnavailable},
		{"dropped connection", dropConnection},
		{"explicit failure", relayFailure(http.StatusOK)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rs, url, hits := newFaultyRelay(t, protocol.PathIceCandidates, 2, tc.fault)
			tr := NewHTTPTransport(url, Options{PollInterval: testPoll, RequestTimeout: time.Second})
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if _, err := rs.Store().RegisterOffer("room1", "offer"); err != nil {
				t.Fatal(err)
			}
			if err := rs.Store().AddCandidate("room1", `{"candidate":"candidate:1 1 udp 1 10.0.0.1 1 typ host"}`); err != nil {
				t.Fatal(err)
			}

			delivered := make(chan webrtc.ICECandidateInit, 1)
			if err := tr.RegisterIceCandidateListener(ctx, "room1", func(c webrtc.ICECandidateInit) { delivered <- c }); err != nil {
				t.Fatal(err)
			}

			select {
			case c := <-delivered:
				if c.Candidate != "candidate:1 1 udp 1 10.0.0.1 1 typ host" {
					t.Fatalf("delivered %+v", c)
				}
			case <-ctx.Done():
				t.Fatal("listener gave up after a fault")
			}
			if n := hits.Load(); n < 3 {
				t.Fatalf("candidate polls = %d, want faults then a successful poll", n)
			}
		})
	}
}

func TestTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"not found", &NotFoundError{Op: opPollAnswer, Name: "room1"}, true},
		{"network", &NetworkError{Op: opPollAnswer, Err: errors.New("connection reset")}, true},
		{"bare gateway error", &RelayError{Op: opPollAnswer, Status: http.StatusBadGateway}, true},
		{"explicit rejection", &RelayError{Op: opPollAnswer, Status: http.StatusOK, Message: "x", Explicit: true}, false},
		{"cancelled", context.Canceled, false},
	}
	for _, tc := range cases {
		if got := transient(tc.err); got != tc.want {
			t.Errorf("%s: transient = %v, want %v", tc.name, got, tc.want)
		}
	}
}
