package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidSignature = errors.New("invalid signature")

// SigningMessage 构造请求签名原文: 方法、路径、时间戳和请求体哈希
func SigningMessage(method, path, timestamp string, body []byte) []byte {
	return []byte(fmt.Sprintf("%s\n%s\n%s\n%s",
		strings.ToUpper(method), path, timestamp, crypto.Keccak256Hash(body).Hex()))
}

// SignMessage 使用 EIP-191 personal_sign 对消息签名, v 取 27/28
func SignMessage(message []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverSigner 从 EIP-191 签名中恢复签名者地址
func RecoverSigner(message []byte, signature string) (common.Address, error) {
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		signature = "0x" + signature
	}
	raw, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(raw) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(raw))
	}

	sig := make([]byte, len(raw))
	copy(sig, raw)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, raw[crypto.RecoveryIDOffset])
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
