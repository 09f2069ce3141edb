package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const SignatureHeader = "X-Webhook-Signature"

// VerifySignature authenticates inbound organization-lifecycle events: an
// HMAC-SHA256 over the raw body with the shared secret must match the
// signature header. Anything missing or mismatched is rejected before the
// event reaches the lifecycle manager.
func VerifySignature(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := c.GetHeader(SignatureHeader)
		if signature == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing signature header"})
			c.Abort()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
			c.Abort()
			return
		}
		// Restore the body for the handler.
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		if !ValidSignature(secret, body, signature) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Sign computes the hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func ValidSignature(secret string, payload []byte, signature string) bool {
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
