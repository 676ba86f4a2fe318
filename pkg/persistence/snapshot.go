package persistence

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/x448/float16"

	"github.com/mohankumarSriram/katana/pkg/core/latent"
)

// Precision selects the on-disk width of the factor components.
type Precision string

const (
	// Float64 stores factors exactly as trained.
	Float64 Precision = "float64"
	// Float16 halves the snapshot size at the cost of a lossy round trip.
	Float16 Precision = "float16"
)

// ParsePrecision maps a configuration name to a Precision.
func ParsePrecision(name string) (Precision, error) {
	switch Precision(name) {
	case Float64:
		return Float64, nil
	case Float16:
		return Float16, nil
	default:
		return "", fmt.Errorf("persistence: unknown precision %q", name)
	}
}

// Meta is the JSON header frame of a factor snapshot.
type Meta struct {
	RunID      string    `json:"run_id"`
	VectorSize int       `json:"vector_size"`
	NumMovies  int       `json:"num_movies"`
	NumUsers   int       `json:"num_users"`
	Precision  Precision `json:"precision"`
	RMSE       float64   `json:"rmse"`
}

// Snapshot is a decoded factor snapshot: the metadata plus the factor
// buffers, movie rows first.
type Snapshot struct {
	Meta   Meta
	Movies []float64
	Users  []float64
}

// WriteSnapshot serializes the store's factors as three frames: metadata,
// movie block, user block.
func WriteSnapshot(w io.Writer, store *latent.Store, meta Meta) error {
	meta.VectorSize = latent.VectorSize
	meta.NumMovies = store.NumMovies()
	meta.NumUsers = store.NumUsers()
	if meta.Precision == "" {
		meta.Precision = Float64
	}

	metaPayload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("persistence: encode meta: %w", err)
	}

	fw := NewFrameWriter(w)
	if err := fw.WriteFrame(OpCodeMeta, metaPayload); err != nil {
		return fmt.Errorf("persistence: write meta frame: %w", err)
	}

	vecs := store.CloneVecs()
	split := store.NumMovies() * latent.VectorSize
	if err := fw.WriteFrame(OpCodeMovieVectors, packVectors(vecs[:split], meta.Precision)); err != nil {
		return fmt.Errorf("persistence: write movie frame: %w", err)
	}
	if err := fw.WriteFrame(OpCodeUserVectors, packVectors(vecs[split:], meta.Precision)); err != nil {
		return fmt.Errorf("persistence: write user frame: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot. Half-precision
// payloads are widened back to float64; Meta.Precision tells the caller the
// round trip was lossy.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	opCode, payload, err := ReadFrame(r)
	if err != nil {
		return nil, fmt.Errorf("persistence: read meta frame: %w", err)
	}
	if opCode != OpCodeMeta {
		return nil, fmt.Errorf("persistence: want meta frame, got opcode 0x%02x", opCode)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap.Meta); err != nil {
		return nil, fmt.Errorf("persistence: decode meta: %w", err)
	}
	if snap.Meta.Precision == "" {
		snap.Meta.Precision = Float64
	}

	opCode, payload, err = ReadFrame(r)
	if err != nil {
		return nil, fmt.Errorf("persistence: read movie frame: %w", err)
	}
	if opCode != OpCodeMovieVectors {
		return nil, fmt.Errorf("persistence: want movie frame, got opcode 0x%02x", opCode)
	}
	if snap.Movies, err = unpackVectors(payload, snap.Meta.Precision); err != nil {
		return nil, err
	}

	opCode, payload, err = ReadFrame(r)
	if err != nil {
		return nil, fmt.Errorf("persistence: read user frame: %w", err)
	}
	if opCode != OpCodeUserVectors {
		return nil, fmt.Errorf("persistence: want user frame, got opcode 0x%02x", opCode)
	}
	if snap.Users, err = unpackVectors(payload, snap.Meta.Precision); err != nil {
		return nil, err
	}

	if len(snap.Movies) != snap.Meta.NumMovies*snap.Meta.VectorSize {
		return nil, fmt.Errorf("persistence: movie block has %d components, meta says %d",
			len(snap.Movies), snap.Meta.NumMovies*snap.Meta.VectorSize)
	}
	if len(snap.Users) != snap.Meta.NumUsers*snap.Meta.VectorSize {
		return nil, fmt.Errorf("persistence: user block has %d components, meta says %d",
			len(snap.Users), snap.Meta.NumUsers*snap.Meta.VectorSize)
	}
	return &snap, nil
}

func packVectors(vecs []float64, p Precision) []byte {
	if p == Float16 {
		out := make([]byte, 2*len(vecs))
		for i, v := range vecs {
			bits := float16.Fromfloat32(float32(v)).Bits()
			binary.LittleEndian.PutUint16(out[2*i:], bits)
		}
		return out
	}
	out := make([]byte, 8*len(vecs))
	for i, v := range vecs {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
	}
	return out
}

func unpackVectors(payload []byte, p Precision) ([]float64, error) {
	if p == Float16 {
		if len(payload)%2 != 0 {
			return nil, fmt.Errorf("persistence: float16 block length %d not a multiple of 2", len(payload))
		}
		out := make([]float64, len(payload)/2)
		for i := range out {
			bits := binary.LittleEndian.Uint16(payload[2*i:])
			out[i] = float64(float16.Frombits(bits).Float32())
		}
		return out, nil
	}
	if len(payload)%8 != 0 {
		return nil, fmt.Errorf("persistence: float64 block length %d not a multiple of 8", len(payload))
	}
	out := make([]float64, len(payload)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[8*i:]))
	}
	return out, nil
}
