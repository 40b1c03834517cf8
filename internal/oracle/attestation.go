// Package oracle resolves and cross-validates the FORCA/USD price from two
// independent sources: a push-oracle price attestation and the canonical
// liquidity-pool reserve ratio.
package oracle

import (
	"encoding/binary"
	"fmt"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
)

// Push-oracle program ids whose accounts carry valid attestations.
const (
	PushOracleProgramID = "pythWSnswVUd12oZpeFP8e9CVaEqJg25g1Vtc2biRsT"
	ReceiverProgramID   = "rec5EKMGg6MxZYaMdyBfgwp4d5rB9T1VQH5pJv5LtFJ"
)

// VerificationLevel is the attestation verification tag. Modeled as a sealed
// variant so new levels force explicit handling.
type VerificationLevel interface {
	verificationLevel()
}

// VerificationFull marks a fully verified attestation.
type VerificationFull struct{}

// VerificationPartial marks a partially verified attestation and carries the
// number of verifying signatures.
type VerificationPartial struct {
	NumSignatures uint8
}

func (VerificationFull) verificationLevel()    {}
func (VerificationPartial) verificationLevel() {}

// Attestation account layout offsets (all integers little-endian):
// discriminator(8) + writeAuthority(32) + verification tag(1, Partial adds
// one byte) + feedID(32) + price(i64) + conf(u64) + expo(i32) +
// publishTime(i64). Trailing prevPublishTime/ema fields are ignored.
const (
	attHeaderLen  = 8 + 32
	attMessageLen = 32 + 8 + 8 + 4 + 8
	attMinLen     = attHeaderLen + 1 + attMessageLen
)

// Attestation is a parsed push-oracle price record.
type Attestation struct {
	Verification VerificationLevel
	FeedID       [32]byte
	Price        int64
	Conf         uint64
	Expo         int32
	PublishTime  int64
}

// ParseAttestation decodes a price attestation account buffer. A zero price
// is treated as "no data" and rejected.
func ParseAttestation(data []byte) (*Attestation, error) {
	if len(data) < attMinLen {
		return nil, fmt.Errorf("%w: buffer too short (%d bytes)", domain.ErrOracleParse, len(data))
	}

	off := attHeaderLen
	var level VerificationLevel
	switch data[off] {
	case 0:
		if len(data) < off+2 {
			return nil, fmt.Errorf("%w: truncated partial verification tag", domain.ErrOracleParse)
		}
		level = VerificationPartial{NumSignatures: data[off+1]}
		off += 2
	case 1:
		level = VerificationFull{}
		off++
	default:
		return nil, fmt.Errorf("%w: unknown verification tag %d", domain.ErrOracleParse, data[off])
	}

	if len(data) < off+attMessageLen {
		return nil, fmt.Errorf("%w: truncated price message", domain.ErrOracleParse)
	}

	a := &Attestation{Verification: level}
	copy(a.FeedID[:], data[off:off+32])
	off += 32
	a.Price = int64(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8
	a.Conf = binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	a.Expo = int32(binary.LittleEndian.Uint32(data[off : off+4]))
	off += 4
	a.PublishTime = int64(binary.LittleEndian.Uint64(data[off : off+8]))

	if a.Price == 0 {
		return nil, fmt.Errorf("%w: zero price", domain.ErrOracleParse)
	}
	return a, nil
}
