package gossip

import (
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/andydunstall/murmur/pkg/log"
)

// Transporter sends messages to other nodes.
//
// Delivery is best effort. Messages may be dropped, duplicated or reordered.
type Transporter interface {
	// Send sends the message to the node with the given endpoint.
	Send(to Endpoint, msg Message)

	// Reply sends the message to the sender of req.
	Reply(req *RemoteMessage, msg Message)
}

// packetTransport sends and receives messages as UDP packets.
//
// Received messages are submitted to the scheduler to be dispatched on the
// event loop.
type packetTransport struct {
	self Endpoint

	conn net.PacketConn

	readBuf       []byte
	maxPacketSize int

	scheduler Scheduler
	dispatch  func(msg *RemoteMessage)

	metrics *Metrics

	logger log.Logger
}

func newPacketTransport(
	self Endpoint,
	conn net.PacketConn,
	maxPacketSize int,
	scheduler Scheduler,
	dispatch func(msg *RemoteMessage),
	metrics *Metrics,
	logger log.Logger,
) *packetTransport {
	return &packetTransport{
		self:          self,
		conn:          conn,
		readBuf:       make([]byte, maxPacketSize),
		maxPacketSize: maxPacketSize,
		scheduler:     scheduler,
		dispatch:      dispatch,
		metrics:       metrics,
		logger:        logger,
	}
}

// Serve reads packets until the connection is closed.
func (t *packetTransport) Serve() {
	for {
		n, addr, err := t.conn.ReadFrom(t.readBuf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Warn("failed to read packet", zap.Error(err))
			continue
		}

		t.metrics.PacketBytesInbound.Add(float64(n))

		msg, err := decodePacket(t.readBuf[:n])
		if err != nil {
			t.metrics.PacketErrors.WithLabelValues("inbound").Inc()
			t.logger.Warn(
				"failed to decode packet",
				zap.String("addr", addr.String()),
				zap.Error(err),
			)
			continue
		}

		t.metrics.PacketsInbound.WithLabelValues(msg.Payload.Kind().String()).Inc()

		t.scheduler.Submit(func() {
			t.dispatch(msg)
		})
	}
}

func (t *packetTransport) Send(to Endpoint, msg Message) {
	if err := t.send(to, msg); err != nil {
		t.metrics.PacketErrors.WithLabelValues("outbound").Inc()
		t.logger.Warn(
			"failed to send packet",
			zap.String("to", to.String()),
			zap.String("kind", msg.Kind().String()),
			zap.Error(err),
		)
	}
}

func (t *packetTransport) Reply(req *RemoteMessage, msg Message) {
	t.Send(req.Sender, msg)
}

func (t *packetTransport) Close() error {
	return t.conn.Close()
}

func (t *packetTransport) send(to Endpoint, msg Message) error {
	b, err := encodePacket(t.self, msg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if len(b) > t.maxPacketSize {
		return fmt.Errorf(
			"packet exceeds max packet size: %d > %d", len(b), t.maxPacketSize,
		)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", to.String())
	if err != nil {
		return fmt.Errorf("resolve udp: %s: %w", to, err)
	}
	if _, err = t.conn.WriteTo(b, udpAddr); err != nil {
		return fmt.Errorf("write packet: %s: %w", to, err)
	}

	t.metrics.PacketsOutbound.WithLabelValues(msg.Kind().String()).Inc()
	t.metrics.PacketBytesOutbound.Add(float64(len(b)))

	return nil
}

var _ Transporter = &packetTransport{}
