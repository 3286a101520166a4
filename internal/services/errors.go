package services

import (
	"errors"

	"github.com/backyardfi/vaultledger/internal/store"
)

// ErrNotFound mirrors the store sentinel so callers only need this package.
var ErrNotFound = store.ErrNotFound

// ErrInvalidInput marks rejected caller input: negative deposit amounts,
// non-finite metric values, malformed vault addresses.
var ErrInvalidInput = errors.New("invalid input")
