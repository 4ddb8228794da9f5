package graph

import (
	"errors"
	"fmt"

	"github.com/halvardix/colgraph/pkg/kvstore"
)

// Sentinel errors matching spec §7's taxonomy. Node/RelationshipNotFound
// wrap the backend's ErrNotFound so callers can check either layer with
// errors.Is; CodecError wraps codec.ErrUnsupportedType/ErrMalformed the
// same way.
var (
	ErrNodeNotFound         = errors.New("graph: node not found")
	ErrRelationshipNotFound = errors.New("graph: relationship not found")
	ErrCodec                = errors.New("graph: attribute codec error")
	ErrUsage                = errors.New("graph: usage error")
	ErrAlreadyExists        = errors.New("graph: already exists")
)

func newNodeNotFound(nodeType, key string) error {
	return fmt.Errorf("%w: (%s, %s): %w", ErrNodeNotFound, nodeType, key, kvstore.ErrNotFound)
}

func newRelationshipNotFound(relType, relKey string) error {
	return fmt.Errorf("%w: (%s, %s): %w", ErrRelationshipNotFound, relType, relKey, kvstore.ErrNotFound)
}

func newCodecError(err error) error {
	return fmt.Errorf("%w: %w", ErrCodec, err)
}

func newUsageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}
