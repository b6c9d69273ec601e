package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vaultmesh/recovery-backend/interfaces"
)

func TestCIDForContent(t *testing.T) {
	id := interfaces.ComputeID([]byte("wallet artifact"))
	cid := cidForContent(id)

	// CIDv1, base32 multibase, raw codec, sha2-256 multihash. The header is
	// constant so every CID shares the bafkrei prefix, and 36 header+digest
	// bytes encode to 58 base32 characters.
	assert.True(t, strings.HasPrefix(cid, "bafkrei"), "CID %s should start with bafkrei", cid)
	assert.Len(t, cid, 59)
	assert.Equal(t, strings.ToLower(cid), cid, "CID should be lowercase")
	assert.NotContains(t, cid, "=", "CID should not be padded")

	other := cidForContent(interfaces.ComputeID([]byte("different artifact")))
	assert.NotEqual(t, cid, other)
}
