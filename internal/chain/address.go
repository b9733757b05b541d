package chain

import (
	"encoding/binary"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// fundSeed 资金地址派生前缀
const fundSeed = "CROWDFUNDING"

// DeriveFundAddress 由创建者身份和名称确定性派生资金地址
func DeriveFundAddress(creator, name string) string {
	hash := crypto.Keccak256(
		[]byte(fundSeed),
		lengthPrefixed(identityBytes(creator)),
		lengthPrefixed([]byte(name)),
	)
	return common.BytesToAddress(hash[12:]).Hex()
}

// NormalizeIdentity 统一身份表示, 以太坊地址转为校验和格式
func NormalizeIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	if common.IsHexAddress(identity) {
		return common.HexToAddress(identity).Hex()
	}
	return identity
}

// IsFundAddress 判断字符串是否为合法的资金地址
func IsFundAddress(address string) bool {
	return common.IsHexAddress(address)
}

func identityBytes(identity string) []byte {
	identity = strings.TrimSpace(identity)
	if common.IsHexAddress(identity) {
		return common.HexToAddress(identity).Bytes()
	}
	return []byte(identity)
}

func lengthPrefixed(b []byte) []byte {
	out := make([]byte, 2+len(b))
	binary.BigEndian.PutUint16(out, uint16(len(b)))
	copy(out[2:], b)
	return out
}
