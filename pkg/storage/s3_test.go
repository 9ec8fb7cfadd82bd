package storage

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestProofContentType(t *testing.T) {
	tests := []struct {
		contentType, filename string
		want                  string
		ok                    bool
	}{
		{"image/png", "x.bin", "image/png", true},
		{"", "receipt.JPEG", "image/jpeg", true},
		{"application/octet-stream", "receipt.pdf", "application/pdf", true},
		{"text/html", "page.html", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, ok := ProofContentType(tt.contentType, tt.filename)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPaymentProofKey(t *testing.T) {
	ev, p := uuid.New(), uuid.New()
	key := PaymentProofKey(ev, p, "image/png")
	assert.True(t, strings.HasPrefix(key, "payment-proofs/"+ev.String()+"/"+p.String()+"/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.NotEqual(t, key, PaymentProofKey(ev, p, "image/png"))
}
