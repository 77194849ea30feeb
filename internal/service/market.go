package service

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NormalizeMarketID canonicalises a market identifier. 0x-prefixed ids must be a
// 32-byte condition id or a 20-byte address; anything else is kept as a trimmed slug.
func NormalizeMarketID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if !strings.HasPrefix(strings.ToLower(id), "0x") {
		return id, nil
	}
	raw, err := hexutil.Decode(strings.ToLower(id[:2]) + id[2:])
	if err != nil {
		return "", fmt.Errorf("market id %q: %w", id, err)
	}
	switch len(raw) {
	case common.HashLength:
		return common.BytesToHash(raw).Hex(), nil
	case common.AddressLength:
		return common.BytesToAddress(raw).Hex(), nil
	default:
		return "", fmt.Errorf("market id %q: %d bytes, want %d or %d", id, len(raw), common.HashLength, common.AddressLength)
	}
}
