package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

func GenerateTicketID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("tkt_%d_%06d", timestamp, randomNum.Int64())
}

func GenerateOrderID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999999))
	return fmt.Sprintf("ord_%d_%09d", timestamp, randomNum.Int64())
}

// GenerateQRToken returns the opaque token embedded in a ticket's QR
// code. 16 random bytes, hex-encoded; carries no ticket data.
func GenerateQRToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return GenerateTicketID()
	}
	return "qr_" + hex.EncodeToString(buf)
}

func GenerateLogID() string {
	timestamp := time.Now().UnixNano()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("log_%d_%06d", timestamp, randomNum.Int64())
}
