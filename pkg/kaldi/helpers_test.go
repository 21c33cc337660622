package kaldi

import (
	"encoding/binary"
	"io"
	"math"
)

// rec assembles a binary record from raw parts.
func rec(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func tagInt(v int32) []byte {
	return binary.LittleEndian.AppendUint32([]byte{intTag}, uint32(v))
}

func tagFloat(v float32) []byte {
	return binary.LittleEndian.AppendUint32([]byte{intTag}, math.Float32bits(v))
}

func f32s(vals ...float32) []byte {
	var out []byte
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

// closeTracker is a caller-owned reader that records whether anyone closed it.
type closeTracker struct {
	r      io.Reader
	closed bool
}

func (c *closeTracker) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}
