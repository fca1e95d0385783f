package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
)

// Key identifies one baseline ensemble.
type Key string

// KeyInput lists everything that determines a baseline ensemble result.
type KeyInput struct {
	Region  domain.Region
	Period  domain.TimeRange
	Inputs  []domain.RealizationInput
	Options string // canonical rendering of the normalization, index and ensemble options
}

// NewKey derives a deterministic SHA-256 key. Member order does not matter,
// which matches the order independence of the ensemble statistics.
func NewKey(in KeyInput) Key {
	h := sha256.New()

	writeString(h, "region")
	writeString(h, strings.ToLower(in.Region.Name))
	b := in.Region.Bounds
	writeFloats(h, b.LatMin, b.LatMax, b.LonMin, b.LonMax)
	if in.Region.Polygon != nil {
		writeFloats(h, in.Region.Polygon.FlatCoords()...)
	}

	writeString(h, "period")
	writeString(h, in.Period.Start.UTC().Format(time.RFC3339))
	writeString(h, in.Period.End.UTC().Format(time.RFC3339))
	writeString(h, in.Period.Season.String())

	writeString(h, "models")
	labels := make([]string, len(in.Inputs))
	prints := make([]string, len(in.Inputs))
	for i, r := range in.Inputs {
		labels[i] = r.Label()
		prints[i] = Fingerprint(r)
	}
	slices.Sort(labels)
	slices.Sort(prints)
	for _, l := range labels {
		writeString(h, l)
	}
	writeString(h, "data")
	for _, p := range prints {
		writeString(h, p)
	}

	writeString(h, "options")
	writeString(h, in.Options)
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// Fingerprint hashes the content of one realization: identity, declared
// units, axes, values and cell areas.
func Fingerprint(r domain.RealizationInput) string {
	h := sha256.New()
	writeString(h, r.ModelID)
	writeString(h, r.MemberID)
	writeString(h, string(r.UnitsOverride))

	keys := make([]string, 0, len(r.Field.Attrs))
	for k := range r.Field.Attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		writeString(h, k)
		writeString(h, r.Field.Attrs[k])
	}

	for _, a := range r.Field.Axes {
		writeString(h, a.Name)
		writeFloats(h, a.Values...)
		for _, t := range a.Times {
			writeInt(h, t.UnixNano())
		}
	}
	writeFloats(h, r.Field.Values...)
	writeFloats(h, r.Field.CellArea...)
	return hex.EncodeToString(h.Sum(nil))
}

func writeString(h hash.Hash, s string) {
	writeInt(h, int64(len(s)))
	h.Write([]byte(s))
}

func writeInt(h hash.Hash, v int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	h.Write(buf[:])
}

// writeFloats hashes a length-prefixed float vector. Every NaN payload hashes alike.
func writeFloats(h hash.Hash, vs ...float64) {
	writeInt(h, int64(len(vs)))
	var buf [8]byte
	for _, v := range vs {
		bits := math.Float64bits(v)
		if math.IsNaN(v) {
			bits = math.Float64bits(math.NaN())
		}
		binary.LittleEndian.PutUint64(buf[:], bits)
		h.Write(buf[:])
	}
}
