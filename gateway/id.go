package gateway

import (
	"github.com/oklog/ulid/v2"
)

// comparable
// ulids are ordered by create time, so ids minted by the same process sort
// in registration order
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}
