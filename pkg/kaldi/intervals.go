package kaldi

import "io"

// Interval is the begin/end time of one confusion-network bin. Intervals are
// stored apart from the posterior they describe; pairing them up by position
// is left to the caller.
type Interval struct {
	Begin, End float32
}

// ReadIntervals decodes a binary interval-pair record.
func ReadIntervals(r io.Reader) ([]Interval, error) {
	d := newDecoder(r)
	if err := d.expectBinary("intervals"); err != nil {
		return nil, err
	}
	n, err := d.readCount("interval count")
	if err != nil {
		return nil, err
	}
	out := make([]Interval, 0, min(n, 1<<16))
	for i := 0; i < n; i++ {
		b, err := d.readFloat32("interval begin")
		if err != nil {
			return nil, err
		}
		e, err := d.readFloat32("interval end")
		if err != nil {
			return nil, err
		}
		out = append(out, Interval{Begin: b, End: e})
	}
	return out, nil
}
