package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/abelt/coinflip-services/internal/commit"
)

// Operation tags. The tag space is closed: a receiver must reject any
// tag it does not recognize.
const (
	OpCreate       = uint32(1)
	OpJoin         = uint32(2)
	OpReveal       = uint32(3)
	OpCancel       = uint32(4)
	OpClaimForfeit = uint32(5)
)

var (
	ErrUnknownOp  = errors.New("unknown operation tag")
	ErrBadPayload = errors.New("malformed operation payload")
)

// Operation is the decoded form of a protocol payload. Only the fields
// relevant to Op are populated.
type Operation struct {
	Op         uint32
	MatchID    uint64
	BetAmount  uint64
	Commitment commit.Commitment
	Secret     commit.Secret
}

// Payload layout: uint32 big-endian tag, then tag-specific fields.
// betAmount and matchId are uint64 big-endian; 32-byte buffers are
// carried as sub-records prefixed with a uint16 big-endian length.

func EncodeCreate(betAmount uint64, c commit.Commitment) []byte {
	buf := &bytes.Buffer{}
	writeUint32(buf, OpCreate)
	writeUint64(buf, betAmount)
	writeRef(buf, c[:])
	return buf.Bytes()
}

func EncodeJoin(matchID uint64, c commit.Commitment) []byte {
	buf := &bytes.Buffer{}
	writeUint32(buf, OpJoin)
	writeUint64(buf, matchID)
	writeRef(buf, c[:])
	return buf.Bytes()
}

func EncodeReveal(matchID uint64, s commit.Secret) []byte {
	buf := &bytes.Buffer{}
	writeUint32(buf, OpReveal)
	writeUint64(buf, matchID)
	writeRef(buf, s[:])
	return buf.Bytes()
}

func EncodeCancel(matchID uint64) []byte {
	buf := &bytes.Buffer{}
	writeUint32(buf, OpCancel)
	writeUint64(buf, matchID)
	return buf.Bytes()
}

func EncodeClaimForfeit(matchID uint64) []byte {
	buf := &bytes.Buffer{}
	writeUint32(buf, OpClaimForfeit)
	writeUint64(buf, matchID)
	return buf.Bytes()
}

// Decode parses a binary operation payload. Unknown tags, truncated
// fields and trailing bytes are all rejected.
func Decode(payload []byte) (*Operation, error) {
	r := bytes.NewReader(payload)

	tag, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	op := &Operation{Op: tag}
	switch tag {
	case OpCreate:
		if op.BetAmount, err = readUint64(r); err != nil {
			return nil, err
		}
		ref, err := readRef(r)
		if err != nil {
			return nil, err
		}
		if op.Commitment, err = commit.CommitmentFromBytes(ref); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	case OpJoin:
		if op.MatchID, err = readUint64(r); err != nil {
			return nil, err
		}
		ref, err := readRef(r)
		if err != nil {
			return nil, err
		}
		if op.Commitment, err = commit.CommitmentFromBytes(ref); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	case OpReveal:
		if op.MatchID, err = readUint64(r); err != nil {
			return nil, err
		}
		ref, err := readRef(r)
		if err != nil {
			return nil, err
		}
		if op.Secret, err = commit.SecretFromBytes(ref); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	case OpCancel, OpClaimForfeit:
		if op.MatchID, err = readUint64(r); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownOp, tag)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrBadPayload, r.Len())
	}
	return op, nil
}

// ToBase64 wraps a binary payload in its transport envelope encoding.
func ToBase64(payload []byte) string {
	return base64.StdEncoding.EncodeToString(payload)
}

// FromBase64 unwraps the transport envelope encoding.
func FromBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return b, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeRef(buf *bytes.Buffer, b []byte) {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(b)))
	buf.Write(l[:])
	buf.Write(b)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	n, err := r.Read(b[:])
	if err != nil || n != 4 {
		return 0, ErrBadPayload
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	n, err := r.Read(b[:])
	if err != nil || n != 8 {
		return 0, ErrBadPayload
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readRef(r *bytes.Reader) ([]byte, error) {
	var l [2]byte
	n, err := r.Read(l[:])
	if err != nil || n != 2 {
		return nil, ErrBadPayload
	}
	size := int(binary.BigEndian.Uint16(l[:]))
	b := make([]byte, size)
	n, err = r.Read(b)
	if err != nil || n != size {
		return nil, ErrBadPayload
	}
	return b, nil
}
