package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/andresmejia3/pupilscan/internal/types"
	"github.com/andresmejia3/pupilscan/internal/utils" // Using the SafeCommand wrapper
)

// Reply status bytes written by the Python side.
const (
	statusOK    = 0
	statusError = 1
)

// Config controls how the landmark worker is launched.
type Config struct {
	Script      string
	ReadTimeout time.Duration
}

// deadliner is implemented by *os.File pipes; in-memory test pipes don't need it.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// LandmarkWorker drives one Python face-mesh process.
type LandmarkWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration
}

// NewLandmarkWorker starts the Python detector. It is killed when ctx is cancelled.
func NewLandmarkWorker(ctx context.Context, id int, cfg Config) (*LandmarkWorker, error) {
	// 1. Initialize the SafeCommand
	py := utils.NewSafeCommandContext(ctx, "python3", "-u", cfg.Script)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &LandmarkWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed request and reads one length-prefixed reply.
func (w *LandmarkWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(deadliner); ok && w.ReadTimeout > 0 {
		d.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		defer d.SetReadDeadline(time.Time{})
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch a Python crash on import
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame runs face-mesh on a JPEG frame. It returns nil, nil when no face was found.
//
// Reply layout (big endian):
//
//	[Status:u8=0] [Found:u8] [Width:u32] [Height:u32] [N:u32] N × ([Index:u32] [X:f32] [Y:f32])
//	[Status:u8=1] [MsgLen:u32] [Msg]
func (w *LandmarkWorker) ProcessFrame(jpeg []byte) (*types.LandmarkSet, error) {
	resp, err := w.Communicate(jpeg)
	if err != nil {
		return nil, err
	}
	return decodeReply(resp)
}

func decodeReply(resp []byte) (*types.LandmarkSet, error) {
	r := bytes.NewReader(resp)

	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty worker reply: %w", err)
	}
	if status == statusError {
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("truncated worker error: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("truncated worker error: %w", err)
		}
		return nil, fmt.Errorf("python worker error: %s", msg)
	}
	if status != statusOK {
		return nil, fmt.Errorf("unknown worker status %d", status)
	}

	found, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("truncated worker reply: %w", err)
	}
	if found == 0 {
		return nil, nil
	}

	var hdr struct {
		Width, Height, N uint32
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("truncated landmark header: %w", err)
	}

	lm := &types.LandmarkSet{
		Width:  int(hdr.Width),
		Height: int(hdr.Height),
		Points: make(map[int]types.Point, hdr.N),
	}
	for i := uint32(0); i < hdr.N; i++ {
		var p struct {
			Index uint32
			X, Y  float32
		}
		if err := binary.Read(r, binary.BigEndian, &p); err != nil {
			return nil, fmt.Errorf("truncated landmark %d of %d: %w", i, hdr.N, err)
		}
		if math.IsNaN(float64(p.X)) || math.IsNaN(float64(p.Y)) {
			continue
		}
		lm.Points[int(p.Index)] = types.Point{X: float64(p.X), Y: float64(p.Y)}
	}
	return lm, nil
}

// Close shuts down the worker and waits for the process to exit.
func (w *LandmarkWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}
