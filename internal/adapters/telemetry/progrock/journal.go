package progrock

import (
	"io"
	"sync"

	"github.com/vito/progrock"
	"go.trai.ch/zerr"
	"google.golang.org/protobuf/encoding/protojson"
)

// Journal is a progrock.Writer appending every status update to w as a JSON line.
type Journal struct {
	mu sync.Mutex
	w  io.Writer
}

var _ progrock.Writer = (*Journal)(nil)

// NewJournal creates a Journal. Close closes w if it is an io.Closer.
func NewJournal(w io.Writer) *Journal {
	return &Journal{w: w}
}

// WriteStatus implements progrock.Writer.
func (j *Journal) WriteStatus(update *progrock.StatusUpdate) error {
	data, err := protojson.Marshal(update)
	if err != nil {
		return zerr.Wrap(err, "encode progress update")
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(append(data, '\n')); err != nil {
		return zerr.Wrap(err, "write progress update")
	}
	return nil
}

// Close implements progrock.Writer.
func (j *Journal) Close() error {
	if c, ok := j.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
