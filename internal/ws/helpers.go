package ws

import (
	"encoding/hex"

	"github.com/google/uuid"
)

func newConnID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
