package channel_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/crease/internal/adapters/ws/channel"
	"github.com/okian/crease/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const waitFor = 2 * time.Second

func recv[T any](ch <-chan T) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(waitFor):
		var zero T
		return zero, false
	}
}

func quiet[T any](ch <-chan T) bool {
	select {
	case <-ch:
		return false
	case <-time.After(100 * time.Millisecond):
		return true
	}
}

type scheduled struct {
	delay time.Duration
	fn    func()
}

type fakeTimer struct{ stopped chan struct{} }

func (t *fakeTimer) Stop() bool {
	select {
	case <-t.stopped:
		return false
	default:
		close(t.stopped)
		return true
	}
}

type fakeScheduler struct {
	calls  chan scheduled
	timers chan *fakeTimer
}

func newScheduler() *fakeScheduler {
	return &fakeScheduler{calls: make(chan scheduled, 32), timers: make(chan *fakeTimer, 32)}
}

func (s *fakeScheduler) schedule(d time.Duration, fn func()) channel.Timer {
	t := &fakeTimer{stopped: make(chan struct{})}
	s.calls <- scheduled{delay: d, fn: fn}
	s.timers <- t
	return t
}

type fakeConn struct {
	msgs     chan []byte
	errs     chan error
	done     chan struct{}
	once     sync.Once
	controls chan []byte
}

func newConn() *fakeConn {
	return &fakeConn{
		msgs:     make(chan []byte, 32),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
		controls: make(chan []byte, 4),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-c.msgs:
		return websocket.TextMessage, m, nil
	case err := <-c.errs:
		return 0, nil, err
	case <-c.done:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) WriteControl(_ int, data []byte, _ time.Time) error {
	c.controls <- data
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type harness struct {
	ch     *channel.Channel
	sched  *fakeScheduler
	dials  chan string
	states chan channel.Status
	failed chan error
	events chan string
}

// newHarness dials with next: each dial pops one conn, or fails when it yields nil.
func newHarness(next func() channel.Conn) *harness {
	h := &harness{
		sched:  newScheduler(),
		dials:  make(chan string, 32),
		states: make(chan channel.Status, 64),
		failed: make(chan error, 1),
		events: make(chan string, 32),
	}
	dialer := channel.DialerFunc(func(_ context.Context, url string) (channel.Conn, error) {
		h.dials <- url
		if c := next(); c != nil {
			return c, nil
		}
		return nil, errors.New("connection refused")
	})
	h.ch = channel.New("ws://feed.test/", channel.Handlers{
		OnKeypoints: func(d json.RawMessage) { h.events <- "keypoints:" + string(d) },
		OnAnalysis:  func(d json.RawMessage) { h.events <- "analysis:" + string(d) },
		OnComplete:  func(json.RawMessage) { h.events <- "complete" },
		OnError:     func(m string) { h.events <- "error:" + m },
		OnFailed:    func(err error) { h.failed <- err },
		OnState:     func(s channel.Status) { h.states <- s },
	},
		channel.WithDialer(dialer),
		channel.WithScheduler(h.sched.schedule),
		channel.WithLogger(logger.Nop()),
	)
	return h
}

func (h *harness) waitState(want channel.State) bool {
	deadline := time.After(waitFor)
	for {
		select {
		case s := <-h.states:
			if s.State == want {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func TestChannelURL(t *testing.T) {
	Convey("The feed address joins base, path and escaped id", t, func() {
		c := channel.New("ws://localhost:8000/", channel.Handlers{}, channel.WithLogger(logger.Nop()))
		So(c.URL("abc 1"), ShouldEqual, "ws://localhost:8000/videos/ws/abc%201")
		So(c.Status().State, ShouldEqual, channel.StateDisconnected)
	})
}

func TestReconnectBackoff(t *testing.T) {
	Convey("Given a feed that refuses every dial", t, func() {
		h := newHarness(func() channel.Conn { return nil })
		h.ch.SetTarget("vid-1", true)

		var delays []time.Duration
		for i := 0; i < 5; i++ {
			s, ok := recv(h.sched.calls)
			So(ok, ShouldBeTrue)
			delays = append(delays, s.delay)
			s.fn()
		}

		Convey("Then retries back off exponentially from one second", func() {
			So(delays, ShouldResemble, []time.Duration{
				time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
			})
		})

		Convey("Then the next failure is terminal", func() {
			err, ok := recv(h.failed)
			So(ok, ShouldBeTrue)
			So(errors.Is(err, channel.ErrReconnectExhausted), ShouldBeTrue)
			So(quiet(h.sched.calls), ShouldBeTrue)

			st := h.ch.Status()
			So(st.State, ShouldEqual, channel.StateDisconnected)
			So(st.Attempts, ShouldEqual, 5)
			So(st.LastError, ShouldContainSubstring, "multiple attempts")
			So(len(h.dials), ShouldEqual, 6)
			for len(h.dials) > 0 {
				<-h.dials
			}

			Convey("And re-applying the same target does not retry", func() {
				h.ch.SetTarget("vid-1", true)
				So(quiet(h.dials), ShouldBeTrue)
			})

			Convey("And Reconnect starts over", func() {
				So(h.ch.Reconnect(), ShouldBeNil)
				url, ok := recv(h.dials)
				So(ok, ShouldBeTrue)
				So(url, ShouldEqual, "ws://feed.test/videos/ws/vid-1")
				s, ok := recv(h.sched.calls)
				So(ok, ShouldBeTrue)
				So(s.delay, ShouldEqual, time.Second)
			})
		})
	})
}

func TestDisconnect(t *testing.T) {
	Convey("Given an open channel", t, func() {
		conn := newConn()
		h := newHarness(func() channel.Conn { return conn })
		h.ch.SetTarget("vid-2", true)
		So(h.waitState(channel.StateOpen), ShouldBeTrue)
		So(h.ch.Status().IsConnected(), ShouldBeTrue)

		Convey("When Disconnect is called twice", func() {
			h.ch.Disconnect()
			So(h.waitState(channel.StateDisconnected), ShouldBeTrue)
			h.ch.Disconnect()

			Convey("Then the second call changes nothing and nothing reconnects", func() {
				So(quiet(h.states), ShouldBeTrue)
				So(quiet(h.sched.calls), ShouldBeTrue)
				So(h.ch.Status().State, ShouldEqual, channel.StateDisconnected)
			})

			Convey("Then the socket got a normal close frame", func() {
				frame, ok := recv(conn.controls)
				So(ok, ShouldBeTrue)
				So(frame[:2], ShouldResemble, []byte{0x03, 0xE8})
			})
		})
	})

	Convey("Given a channel waiting to reconnect", t, func() {
		h := newHarness(func() channel.Conn { return nil })
		h.ch.SetTarget("vid-3", true)
		s, ok := recv(h.sched.calls)
		So(ok, ShouldBeTrue)
		timer, _ := recv(h.sched.timers)
		<-h.dials

		h.ch.Disconnect()

		Convey("Then the pending timer is stopped", func() {
			So(timer.Stop(), ShouldBeFalse)
		})

		Convey("Then a late timer callback is ignored", func() {
			s.fn()
			So(quiet(h.dials), ShouldBeTrue)
			So(h.ch.Status().Attempts, ShouldEqual, 0)
		})
	})

	Convey("Given a channel that is disabled", t, func() {
		h := newHarness(func() channel.Conn { return nil })
		So(errors.Is(h.ch.Reconnect(), channel.ErrDisabled), ShouldBeTrue)
		h.ch.SetTarget("", true)
		So(quiet(h.dials), ShouldBeTrue)
	})
}

func TestCloseCodes(t *testing.T) {
	Convey("Given an open channel", t, func() {
		conn := newConn()
		h := newHarness(func() channel.Conn { return conn })
		h.ch.SetTarget("vid-4", true)
		So(h.waitState(channel.StateOpen), ShouldBeTrue)

		Convey("When the server closes normally", func() {
			conn.errs <- &websocket.CloseError{Code: websocket.CloseNormalClosure}

			Convey("Then no reconnect is scheduled", func() {
				So(h.waitState(channel.StateDisconnected), ShouldBeTrue)
				So(quiet(h.sched.calls), ShouldBeTrue)
				So(h.ch.Status().LastError, ShouldBeEmpty)
			})
		})

		Convey("When the server goes away abnormally", func() {
			conn.errs <- &websocket.CloseError{Code: websocket.CloseGoingAway}

			Convey("Then a reconnect is scheduled", func() {
				s, ok := recv(h.sched.calls)
				So(ok, ShouldBeTrue)
				So(s.delay, ShouldEqual, time.Second)
				So(h.ch.Status().Attempts, ShouldEqual, 1)
			})
		})

		Convey("When the target is disabled", func() {
			h.ch.SetTarget("vid-4", false)
			So(h.waitState(channel.StateDisconnected), ShouldBeTrue)
			So(quiet(h.sched.calls), ShouldBeTrue)
		})
	})
}

func TestDispatch(t *testing.T) {
	Convey("Given an open channel receiving a mixed stream", t, func() {
		conn := newConn()
		h := newHarness(func() channel.Conn { return conn })
		h.ch.SetTarget("vid-5", true)
		So(h.waitState(channel.StateOpen), ShouldBeTrue)

		for _, m := range []string{
			`{"type":"keypoints","data":{"frameIndex":0}}`,
			`not json at all`,
			`{"type":"mystery","data":1}`,
			`{"type":"bedrock_analysis","data":{"shot":"cover drive"}}`,
			`{"type":"error"}`,
			`{"type":"error","message":"model crashed"}`,
			`{"type":"complete"}`,
		} {
			conn.msgs <- []byte(m)
		}

		var got []string
		for i := 0; i < 5; i++ {
			e, ok := recv(h.events)
			So(ok, ShouldBeTrue)
			got = append(got, e)
		}

		Convey("Then known messages arrive in order and bad ones are dropped", func() {
			So(got, ShouldResemble, []string{
				`keypoints:{"frameIndex":0}`,
				`analysis:{"shot":"cover drive"}`,
				"error:" + channel.DefaultErrorMessage,
				"error:model crashed",
				"complete",
			})
			So(h.ch.Status().IsConnected(), ShouldBeTrue)
		})
	})
}

func TestEndToEnd(t *testing.T) {
	Convey("Given a websocket feed server", t, func() {
		upgrader := websocket.Upgrader{}
		paths := make(chan string, 4)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths <- r.URL.Path
			ws, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"keypoints","data":{"frameIndex":0,"timestamp":0,"persons":[]}}`))
			_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"complete"}`))
			// drop without a close frame
			_ = ws.UnderlyingConn().Close()
		}))
		defer srv.Close()

		sched := newScheduler()
		events := make(chan string, 8)
		c := channel.New("ws"+strings.TrimPrefix(srv.URL, "http"), channel.Handlers{
			OnKeypoints: func(json.RawMessage) { events <- "keypoints" },
			OnComplete:  func(json.RawMessage) { events <- "complete" },
		}, channel.WithScheduler(sched.schedule), channel.WithLogger(logger.Nop()))
		defer c.Close()

		c.SetTarget("match-7", true)

		Convey("Then messages are delivered and the abnormal drop schedules a retry", func() {
			p, ok := recv(paths)
			So(ok, ShouldBeTrue)
			So(p, ShouldEqual, "/videos/ws/match-7")

			first, _ := recv(events)
			second, _ := recv(events)
			So(first, ShouldEqual, "keypoints")
			So(second, ShouldEqual, "complete")

			s, ok := recv(sched.calls)
			So(ok, ShouldBeTrue)
			So(s.delay, ShouldEqual, time.Second)

			s.fn()
			p, ok = recv(paths)
			So(ok, ShouldBeTrue)
			So(p, ShouldEqual, "/videos/ws/match-7")
		})
	})
}
