package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeSpace は6桁の確認コードの値域。
var codeSpace = big.NewInt(1_000_000)

// NewActivationCode は暗号学的乱数から0埋め6桁の確認コードを生成する。
func NewActivationCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("確認コードの生成に失敗: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
