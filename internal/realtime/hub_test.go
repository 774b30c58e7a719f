package realtime_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sappyoak/sappyoak-site-functions/internal/model"
	"github.com/sappyoak/sappyoak-site-functions/internal/realtime"
)

type fakeConn struct {
	mu       sync.Mutex
	written  [][]byte
	closed   chan struct{}
	once     sync.Once
	blockOut chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) SetReadLimit(int64) {}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetPongHandler(func(appData string) error) {}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if c.blockOut != nil {
		<-c.blockOut
	}
	if messageType != websocket.TextMessage {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

var _ = Describe("Hub", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		hub    *realtime.Hub
		logger *slog.Logger
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		hub = realtime.NewHub(logger)
		go hub.Run(ctx)
	})

	AfterEach(func() {
		cancel()
	})

	broadcastPayload := func() []byte {
		payload, err := json.Marshal(model.Broadcast{
			Entity: model.FeedRecord{
				PartitionKey: "github-activity",
				RowKey:       "push.push.2024-05-01",
				Actions:      []model.ActivityItem{{SourceEventType: "push", ID: "abc"}},
			},
			PublishMode: model.PublishModeInsert,
		})
		Expect(err).NotTo(HaveOccurred())
		return payload
	}

	It("relays broadcasts to connected clients in the live envelope", func() {
		conn := newFakeConn()
		realtime.NewClient(hub, conn).Start()
		Eventually(hub.ClientCount).Should(Equal(1))

		realtime.NewSubscriber(nil, "activityFeed", hub, logger).Relay(broadcastPayload())

		Eventually(conn.messages).Should(HaveLen(1))
		var message realtime.LiveMessage
		Expect(json.Unmarshal(conn.messages()[0], &message)).To(Succeed())
		Expect(message.Target).To(Equal("activityFeed"))
		Expect(message.Arguments).To(HaveLen(1))
		Expect(message.Arguments[0].PublishMode).To(Equal(model.PublishModeInsert))
		Expect(message.Arguments[0].Entity.RowKey).To(Equal("push.push.2024-05-01"))
	})

	It("unregisters clients that disconnect", func() {
		conn := newFakeConn()
		realtime.NewClient(hub, conn).Start()
		Eventually(hub.ClientCount).Should(Equal(1))

		Expect(conn.Close()).To(Succeed())

		Eventually(hub.ClientCount).Should(BeZero())
	})

	It("drops clients that stop draining their buffer", func() {
		slow := newFakeConn()
		slow.blockOut = make(chan struct{})
		defer close(slow.blockOut)

		realtime.NewClient(hub, slow).Start()
		Eventually(hub.ClientCount).Should(Equal(1))

		Eventually(func() int {
			hub.Broadcast([]byte(`{}`))
			return hub.ClientCount()
		}).Should(BeZero())
	})

	It("ignores malformed published payloads", func() {
		conn := newFakeConn()
		realtime.NewClient(hub, conn).Start()
		Eventually(hub.ClientCount).Should(Equal(1))

		realtime.NewSubscriber(nil, "activityFeed", hub, logger).Relay([]byte("not json"))

		Consistently(conn.messages, 100*time.Millisecond).Should(BeEmpty())
	})

	It("closes clients when stopped", func() {
		conn := newFakeConn()
		realtime.NewClient(hub, conn).Start()
		Eventually(hub.ClientCount).Should(Equal(1))

		cancel()

		Eventually(conn.closed).Should(BeClosed())
		Eventually(func() bool { return hub.Broadcast([]byte(`{}`)) }).Should(BeFalse())
	})
})
