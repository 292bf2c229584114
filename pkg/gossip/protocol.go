package gossip

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ugorji/go/codec"
)

const (
	supportedVersion uint8 = 0
)

// packetHeader identifies the sender of a packet. The sender is the
// advertised endpoint of the node rather than the packets source address.
type packetHeader struct {
	Host string `codec:"host"`
	Port int    `codec:"port"`
}

type encoder struct {
	encoder *codec.Encoder
}

func newEncoder(writer io.Writer) *encoder {
	var handle codec.MsgpackHandle
	return &encoder{
		encoder: codec.NewEncoder(writer, &handle),
	}
}

func (e *encoder) Encode(v interface{}) error {
	return e.encoder.Encode(v)
}

type decoder struct {
	decoder *codec.Decoder
}

func newDecoder(reader io.Reader) *decoder {
	var handle codec.MsgpackHandle
	return &decoder{
		decoder: codec.NewDecoder(reader, &handle),
	}
}

func (d *decoder) Decode(v interface{}) error {
	return d.decoder.Decode(v)
}

// encodePacket encodes the message into a packet containing the message
// kind, protocol version, sender header and message body.
func encodePacket(sender Endpoint, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	_ = buf.WriteByte(uint8(msg.Kind()))
	_ = buf.WriteByte(supportedVersion)

	encoder := newEncoder(&buf)
	if err := encoder.Encode(&packetHeader{
		Host: sender.Host,
		Port: sender.Port,
	}); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	if err := encoder.Encode(msg); err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return buf.Bytes(), nil
}

func decodePacket(b []byte) (*RemoteMessage, error) {
	r := bytes.NewBuffer(b)

	firstByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	kind := MessageKind(firstByte)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if version != supportedVersion {
		return nil, fmt.Errorf("unsupported version: %d", version)
	}

	msg, err := newMessage(kind)
	if err != nil {
		return nil, err
	}

	decoder := newDecoder(r)
	var header packetHeader
	if err := decoder.Decode(&header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if header.Host == "" || header.Port <= 0 {
		return nil, fmt.Errorf("invalid sender: %s:%d", header.Host, header.Port)
	}
	if err := decoder.Decode(msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	if err := validateMessage(msg); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", kind, err)
	}

	return &RemoteMessage{
		Sender: Endpoint{
			Host: header.Host,
			Port: header.Port,
		},
		Payload: msg,
	}, nil
}

// validateMessage rejects messages containing updates of unknown kinds.
func validateMessage(msg Message) error {
	var updates []Update
	switch m := msg.(type) {
	case *MemberUpdatesRpc:
		updates = m.Updates
	case *MemberUpdatesResponse:
		updates = m.Updates
	}
	for _, u := range updates {
		if u.Kind != MemberJoined && u.Kind != MemberLeaved {
			return fmt.Errorf("unsupported update kind: %d", u.Kind)
		}
	}
	return nil
}
