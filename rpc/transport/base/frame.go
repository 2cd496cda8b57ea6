package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	frameHeaderLen = 20
	// maxFramePayload bounds the payload a peer may announce
	maxFramePayload = 1 << 30
)

// frame is the unit exchanged by the socket transports. On the wire it is
//
//	shard   uint64 big endian
//	request uint64 big endian
//	length  uint32 big endian
//	payload length bytes
//
// A response carries the shard and request id of its request.
type frame struct {
	shard   uint64
	request uint64
	payload []byte
}

// writeFrame writes f with a single vectored write
func writeFrame(w io.Writer, f frame) error {
	if len(f.payload) > maxFramePayload {
		return fmt.Errorf("frame payload of %d bytes exceeds limit", len(f.payload))
	}
	var header [frameHeaderLen]byte
	binary.BigEndian.PutUint64(header[0:8], f.shard)
	binary.BigEndian.PutUint64(header[8:16], f.request)
	binary.BigEndian.PutUint32(header[16:20], uint32(len(f.payload)))

	bufs := net.Buffers{header[:], f.payload}
	_, err := bufs.WriteTo(w)
	return err
}

// readFrame reads one frame. The payload is read into buf if it fits,
// otherwise a new slice is allocated. The caller must not reuse buf while
// the payload is in use.
func readFrame(r io.Reader, buf []byte) (frame, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return frame{}, err
	}
	f := frame{
		shard:   binary.BigEndian.Uint64(header[0:8]),
		request: binary.BigEndian.Uint64(header[8:16]),
	}

	n := binary.BigEndian.Uint32(header[16:20])
	if n > maxFramePayload {
		return frame{}, fmt.Errorf("frame announces %d bytes, limit is %d", n, maxFramePayload)
	}
	if int(n) > len(buf) {
		buf = make([]byte, n)
	}
	f.payload = buf[:n]
	if _, err := io.ReadFull(r, f.payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return frame{}, err
	}
	return f, nil
}
