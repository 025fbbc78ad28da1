package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/crease/internal/adapters/mq/queue"
	worker "github.com/okian/crease/internal/adapters/mq/worker"
	model "github.com/okian/crease/internal/domain/model"
	skeleton "github.com/okian/crease/internal/domain/skeleton"
	logging "github.com/okian/crease/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	items chan queue.Item
}

func newMockQueue() *mockQueue {
	return &mockQueue{items: make(chan queue.Item, 16)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Item { return mq.items }

func (mq *mockQueue) add(stream queue.Stream, idx int) {
	mq.items <- queue.Item{
		Stream: stream,
		Record: model.FrameRecord{FrameIndex: idx, Persons: []model.PersonDetection{{PersonID: 0}}},
		Source: skeleton.Size{W: 1280, H: 720},
	}
}

type mockSink struct {
	mu     sync.Mutex
	frames []skeleton.Frame
	fail   map[int]int
}

func newMockSink() *mockSink { return &mockSink{fail: make(map[int]int)} }

func (s *mockSink) Publish(_ context.Context, _ string, f skeleton.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[f.FrameIndex] > 0 {
		s.fail[f.FrameIndex]--
		return errors.New("broker unavailable")
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *mockSink) indices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.FrameIndex
	}
	return out
}

type delaySink struct {
	*mockSink
	delay time.Duration
}

func (s *delaySink) Publish(ctx context.Context, stream string, f skeleton.Frame) error { //nolint:gocritic // test double
	time.Sleep(s.delay)
	return s.mockSink.Publish(ctx, stream, f)
}

func runUntilDrained(q *mockQueue, w *worker.Worker) {
	close(q.items)
	go w.Run(context.Background())
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
	}
}

func waitFor(cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWorker(t *testing.T) {
	display := skeleton.Size{W: 640, H: 360}

	convey.Convey("Given a worker over a queue and a sink", t, func() {
		q := newMockQueue()
		sink := newMockSink()
		w := worker.New(q, sink, display, worker.WithLogger(logging.Nop()))

		convey.Convey("When frames arrive in order", func() {
			for i := 0; i < 5; i++ {
				q.add(queue.StreamLive, i)
			}
			runUntilDrained(q, w)

			convey.Convey("Then they are published in the same order at display size", func() {
				convey.So(sink.indices(), convey.ShouldResemble, []int{0, 1, 2, 3, 4})
				convey.So(sink.frames[0].Display, convey.ShouldResemble, display)
				convey.So(w.Stats().Published, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When a frame is replayed after a reconnect", func() {
			q.add(queue.StreamLive, 0)
			q.add(queue.StreamLive, 1)
			q.add(queue.StreamLive, 1)
			q.add(queue.StreamRefine, 1)
			runUntilDrained(q, w)

			convey.Convey("Then the replay is dropped but other streams are independent", func() {
				convey.So(sink.indices(), convey.ShouldResemble, []int{0, 1, 1})
				convey.So(w.Stats().Duplicates, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the sink fails once", func() {
			sink.fail[2] = 1
			q.add(queue.StreamLive, 2)
			q.add(queue.StreamLive, 2)
			runUntilDrained(q, w)

			convey.Convey("Then the frame can be delivered on its next arrival", func() {
				convey.So(sink.indices(), convey.ShouldResemble, []int{2})
				convey.So(w.Stats().SinkErrors, convey.ShouldEqual, 1)
				convey.So(w.Stats().Duplicates, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a stream is reset between passes", func() {
			go w.Run(context.Background())
			q.add(queue.StreamRefine, 0)
			waitFor(func() bool { return len(sink.indices()) == 1 })
			w.ResetStream(queue.StreamRefine)
			q.add(queue.StreamRefine, 0)
			waitFor(func() bool { return len(sink.indices()) == 2 })
			close(q.items)

			convey.Convey("Then the second pass is delivered again", func() {
				convey.So(sink.indices(), convey.ShouldResemble, []int{0, 0})
				convey.So(w.Stats().Duplicates, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a reset marker is queued between passes", func() {
			q.add(queue.StreamSingle, 0)
			q.add(queue.StreamSingle, 1)
			q.items <- queue.Item{Stream: queue.StreamSingle, Reset: true}
			q.add(queue.StreamSingle, 0)
			q.add(queue.StreamSingle, 0)
			runUntilDrained(q, w)

			convey.Convey("Then only frames queued before the marker count against the new pass", func() {
				convey.So(sink.indices(), convey.ShouldResemble, []int{0, 1, 0})
				convey.So(w.Stats().Duplicates, convey.ShouldEqual, 1)
				convey.So(w.Stats().Published, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When an ack marker follows frames on a slow sink", func() {
			slow := &delaySink{mockSink: newMockSink(), delay: 20 * time.Millisecond}
			sw := worker.New(q, slow, display, worker.WithLogger(logging.Nop()))
			ack := make(chan struct{})
			for i := 0; i < 3; i++ {
				q.add(queue.StreamRefine, i)
			}
			q.items <- queue.Item{Ack: ack}
			go sw.Run(context.Background())

			convey.Convey("Then the ack closes only after every earlier frame is published", func() {
				select {
				case <-ack:
				case <-time.After(2 * time.Second):
				}
				convey.So(slow.indices(), convey.ShouldResemble, []int{0, 1, 2})
				convey.So(sw.Stats().Published, convey.ShouldEqual, 3)
				close(q.items)
			})
		})

		convey.Convey("When shut down while idle", func() {
			ctx := context.Background()
			go w.Run(ctx)
			err := w.Shutdown(ctx)

			convey.Convey("Then it stops promptly and a second shutdown is safe", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When shutdown times out", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := w.Shutdown(ctx)

			convey.Convey("Then the timeout is reported", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}
