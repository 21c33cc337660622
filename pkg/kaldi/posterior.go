package kaldi

import (
	"fmt"
	"io"
)

// PostEntry is one (id, weight) pair of a posterior frame.
type PostEntry struct {
	ID     int32
	Weight float32
}

// Posterior holds, per frame (or confusion-network bin), a weighted set of
// candidate labels.
type Posterior [][]PostEntry

// ReadPosterior decodes a binary posterior record. There is no ASCII form.
func ReadPosterior(r io.Reader) (Posterior, error) {
	d := newDecoder(r)
	if err := d.expectBinary("posterior"); err != nil {
		return nil, err
	}
	frames, err := d.readCount("posterior frames")
	if err != nil {
		return nil, err
	}
	// Capacity is bounded so a corrupt count cannot allocate up front.
	post := make(Posterior, 0, min(frames, 1<<16))
	for i := 0; i < frames; i++ {
		n, err := d.readCount(fmt.Sprintf("posterior frame %d size", i))
		if err != nil {
			return nil, err
		}
		frame := make([]PostEntry, 0, min(n, 1<<16))
		for j := 0; j < n; j++ {
			id, err := d.readInt32("posterior id")
			if err != nil {
				return nil, err
			}
			w, err := d.readFloat32("posterior weight")
			if err != nil {
				return nil, err
			}
			frame = append(frame, PostEntry{ID: id, Weight: w})
		}
		post = append(post, frame)
	}
	return post, nil
}

// ReadConfusionNetwork decodes a confusion network. Its bins share the
// posterior layout: each bin is a list of (word id, posterior) entries.
func ReadConfusionNetwork(r io.Reader) (Posterior, error) {
	return ReadPosterior(r)
}
