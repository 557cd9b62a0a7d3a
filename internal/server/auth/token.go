package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/dmitrijs2005/storefront/internal/common"
)

// TokenBytes is the entropy of every generated token.
const TokenBytes = 32

// TokenGenerator produces unguessable opaque tokens.
type TokenGenerator interface {
	Generate() (string, error)
}

// HexTokenGenerator reads TokenBytes from a CSPRNG and hex-encodes them.
type HexTokenGenerator struct {
	r io.Reader
}

func NewHexTokenGenerator() *HexTokenGenerator {
	return &HexTokenGenerator{r: rand.Reader}
}

func (g *HexTokenGenerator) Generate() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(g.r, b); err != nil {
		return "", fmt.Errorf("%w: generate token: %v", common.ErrorInternal, err)
	}
	return hex.EncodeToString(b), nil
}
