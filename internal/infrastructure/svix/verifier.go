package svix

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/vedant2606-dev/bg-removal-service/pkg/errors"
)

const tolerance = 5 * time.Minute

// Verifier checks webhook signatures in the svix scheme: HMAC-SHA256 over
// "id.timestamp.payload" with the base64 portion of the endpoint secret.
type Verifier struct {
	key []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	raw := strings.TrimPrefix(secret, "whsec_")
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook secret: %w", err)
	}
	return &Verifier{key: key}, nil
}

// Verify validates the signature and the delivery timestamp. The signature
// header carries one or more space-separated "v1,<base64>" entries; any match
// accepts the delivery.
func (v *Verifier) Verify(msgID, timestamp, signatureHeader string, payload []byte) error {
	if msgID == "" || timestamp == "" || signatureHeader == "" {
		return fmt.Errorf("%w: missing webhook headers", pkgerrors.ErrInvalidSignature)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid timestamp", pkgerrors.ErrInvalidSignature)
	}
	age := time.Since(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", pkgerrors.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, v.key)
	fmt.Fprintf(mac, "%s.%s.", msgID, timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, entry := range strings.Fields(signatureHeader) {
		version, sig, found := strings.Cut(entry, ",")
		if !found || version != "v1" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return pkgerrors.ErrInvalidSignature
}
