package rng

import (
	cryptoRand "crypto/rand"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"sync"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float64() float64
}

type cryptoSource struct{}

func (cryptoSource) Float64() float64 {
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err != nil {
		return rand.Float64()
	}

	u := binary.BigEndian.Uint64(buf[:]) >> 11 // 53 bits
	return float64(u) / (1 << 53)
}

// Crypto returns a source backed by crypto/rand.
func Crypto() Source { return cryptoSource{} }

type seededSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSeeded returns a reproducible PCG source, used for simulations.
func NewSeeded(seed uint64) Source {
	return &seededSource{r: rand.New(rand.NewPCG(seed, 0))}
}

func (s *seededSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// Fair is a provably fair float stream. Every digest of
// HMAC-SHA256(serverSeed, "clientSeed:nonce:cursor") yields eight floats
// built from four bytes each.
type Fair struct {
	serverSeed string
	clientSeed string
	nonce      int64

	cursor int
	buf    []byte
}

func NewFair(serverSeed, clientSeed string, nonce int64) *Fair {
	return &Fair{
		serverSeed: serverSeed,
		clientSeed: clientSeed,
		nonce:      nonce,
	}
}

func (f *Fair) Float64() float64 {
	if len(f.buf) < 4 {
		f.buf = f.digest()
		f.cursor++
	}

	b := f.buf[:4]
	f.buf = f.buf[4:]

	var v float64
	div := 256.0
	for _, x := range b {
		v += float64(x) / div
		div *= 256
	}
	return v
}

func (f *Fair) digest() []byte {
	h := hmac.New(sha256.New, []byte(f.serverSeed))
	h.Write([]byte(fmt.Sprintf("%s:%d:%d", f.clientSeed, f.nonce, f.cursor)))
	return h.Sum(nil)
}

// Hash returns the hex HMAC of the first digest, shown to players as the
// bet hash.
func (f *Fair) Hash() string {
	h := hmac.New(sha256.New, []byte(f.serverSeed))
	h.Write([]byte(fmt.Sprintf("%s:%d:%d", f.clientSeed, f.nonce, 0)))
	return hex.EncodeToString(h.Sum(nil))
}

// Sequence replays fixed values in order and wraps around.
type Sequence struct {
	values []float64
	i      int
}

func NewSequence(values ...float64) *Sequence {
	if len(values) == 0 {
		values = []float64{0}
	}
	return &Sequence{values: values}
}

func (s *Sequence) Float64() float64 {
	v := s.values[s.i%len(s.values)]
	s.i++
	return v
}

// GenerateSeed returns 32 random bytes hex encoded.
func GenerateSeed() (string, error) {
	b := make([]byte, 32)
	if _, err := cryptoRand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate seed: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashSeed is the commitment published before a seed is revealed.
func HashSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}
