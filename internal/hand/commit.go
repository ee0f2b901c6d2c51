package hand

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

var (
	// ErrInvalidInput is returned for a NULL hand, an empty secret or a malformed commitment
	ErrInvalidInput = errors.New("invalid input")
	// ErrRevealMismatch is returned when a secret does not reproduce the stored commitment
	ErrRevealMismatch = errors.New("reveal does not match commitment")
)

// CommitmentSize is the length of a Keccak-256 digest
const CommitmentSize = 32

// Commitment is the one-way digest a player publishes instead of the hand
type Commitment [CommitmentSize]byte

// IsZero reports whether the commitment was never set
func (c Commitment) IsZero() bool {
	return c == Commitment{}
}

func (c Commitment) String() string {
	return "0x" + hex.EncodeToString(c[:])
}

// MarshalText encodes the commitment as 0x-prefixed hex
func (c Commitment) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes hex with or without the 0x prefix. Empty text and
// the zero commitment decode to the zero value, which operations reject.
func (c *Commitment) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*c = Commitment{}
		return nil
	}
	parsed, err := decodeCommitment(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCommitment decodes a hex commitment. The zero commitment is rejected.
func ParseCommitment(s string) (Commitment, error) {
	c, err := decodeCommitment(s)
	if err != nil {
		return c, err
	}
	if c.IsZero() {
		return c, fmt.Errorf("%w: commitment is empty", ErrInvalidInput)
	}
	return c, nil
}

func decodeCommitment(s string) (Commitment, error) {
	var c Commitment
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("%w: commitment is not hex: %v", ErrInvalidInput, err)
	}
	if len(raw) != CommitmentSize {
		return c, fmt.Errorf("%w: commitment must be %d bytes, got %d", ErrInvalidInput, CommitmentSize, len(raw))
	}
	copy(c[:], raw)
	return c, nil
}

// Commit binds a hand to a secret, the committing account and a context string
// (the arena identifier), so a commitment cannot be replayed by another account
// or against another arena.
func Commit(h Hand, secret []byte, committer int64, context string) (Commitment, error) {
	if !h.Valid() {
		return Commitment{}, fmt.Errorf("%w: hand can't be %s", ErrInvalidInput, h)
	}
	if len(secret) == 0 {
		return Commitment{}, fmt.Errorf("%w: secret can't be empty", ErrInvalidInput)
	}
	return digest(h, secret, committer, context), nil
}

// Reveal checks that claimed and secret reproduce c
func Reveal(c Commitment, secret []byte, revealer int64, context string, claimed Hand) error {
	expected, err := Commit(claimed, secret, revealer, context)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(expected[:], c[:]) != 1 {
		return ErrRevealMismatch
	}
	return nil
}

// Open recovers the hand behind c by trying every playable hand with secret
func Open(c Commitment, secret []byte, revealer int64, context string) (Hand, error) {
	if len(secret) == 0 {
		return None, fmt.Errorf("%w: secret can't be empty", ErrInvalidInput)
	}
	for _, h := range Playable {
		if err := Reveal(c, secret, revealer, context, h); err == nil {
			return h, nil
		}
	}
	return None, ErrRevealMismatch
}

// digest hashes the canonical encoding:
//
//	hand(1) | len(secret)(4) | secret | committer(8) | len(context)(4) | context
func digest(h Hand, secret []byte, committer int64, context string) Commitment {
	buf := make([]byte, 0, 1+4+len(secret)+8+4+len(context))
	buf = append(buf, byte(h))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(secret)))
	buf = append(buf, secret...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(committer))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(context)))
	buf = append(buf, context...)

	k := sha3.NewLegacyKeccak256()
	k.Write(buf)
	var c Commitment
	copy(c[:], k.Sum(nil))
	return c
}
