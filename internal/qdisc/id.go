// Package qdisc derives the qdisc major ids and ifb device names used for a device.
//
// The base id is "1" followed by the first three hex digits of the MD5 digest of
// the device name, so it always lies in [0x1000, 0x1fff]. Two devices collide when
// those 12 bits match; that risk is accepted and not detected.
package qdisc

import (
	"crypto/md5" // #nosec G501 - used as a stable name digest, not for security
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/ethpandaops/tcshape/internal/types"
)

const (
	hashPrefix = "1"
	hashDigits = 3

	// DirectionOffset separates per-direction ids from the base id
	DirectionOffset = 10

	// RedirectDevicePrefix prefixes the ifb device paired with a physical device
	RedirectDevicePrefix = "ifb"
)

// ID is a qdisc major id
type ID uint32

// Hex renders the id the way tc expects a major handle, without the trailing colon
func (id ID) Hex() string {
	return strconv.FormatUint(uint64(id), 16)
}

// Handle renders "<hex>:"
func (id ID) Handle() string {
	return id.Hex() + ":"
}

// Class renders "<hex>:<minor>"
func (id ID) Class(minor uint32) string {
	return fmt.Sprintf("%s:%d", id.Hex(), minor)
}

// BaseID returns the device's base qdisc major id. It depends only on the name.
func BaseID(device string) ID {
	sum := md5.Sum([]byte(device)) // #nosec G401
	digest := hex.EncodeToString(sum[:])[:hashDigits]

	// prefix + 3 hex digits always parses into 16 bits
	v, _ := strconv.ParseUint(hashPrefix+digest, 16, 32)
	return ID(v)
}

// IdentifierFor returns the base id of device shifted by the direction offset:
// +10 for outgoing, +11 for incoming.
func IdentifierFor(device string, direction types.Direction) (ID, error) {
	var offset ID
	switch direction {
	case types.DirectionOutgoing:
		offset = 0
	case types.DirectionIncoming:
		offset = 1
	default:
		return 0, fmt.Errorf("%w: %q", types.ErrUnknownDirection, string(direction))
	}
	return BaseID(device) + DirectionOffset + offset, nil
}

// RedirectDeviceFor returns the name of the ifb device paired with device
func RedirectDeviceFor(device string) string {
	return RedirectDevicePrefix + strconv.FormatUint(uint64(BaseID(device)), 10)
}

// TargetDevice resolves the device shaping rules are installed on: the device
// itself for outgoing traffic, its ifb device for incoming traffic.
func TargetDevice(spec *types.TrafficSpec) (string, error) {
	switch spec.Direction {
	case types.DirectionOutgoing:
		return spec.Device, nil
	case types.DirectionIncoming:
		return RedirectDeviceFor(spec.Device), nil
	default:
		return "", fmt.Errorf("%w: %q", types.ErrUnknownDirection, string(spec.Direction))
	}
}
