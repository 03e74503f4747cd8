package dhcpmsg6

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// DUID types.
//
// See https://datatracker.ietf.org/doc/html/rfc3315#section-9.1 and, for
// DUID-UUID, https://datatracker.ietf.org/doc/html/rfc6355.
const (
	DUIDTypeLLT  uint16 = 1
	DUIDTypeEN   uint16 = 2
	DUIDTypeLL   uint16 = 3
	DUIDTypeUUID uint16 = 4
)

// NewDUIDUUID returns a fresh DUID-UUID: the two-byte DUID type followed by a
// random UUID.  It is used as the server identity when none is configured.
func NewDUIDUUID() (duid []byte) {
	duid = binary.BigEndian.AppendUint16(nil, DUIDTypeUUID)
	u := uuid.New()

	return append(duid, u[:]...)
}
