package auth

import (
	"bytes"
	"encoding/base32"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	totpSkew   = 1
	qrSize     = 256
)

// OTP provisions and verifies RFC 6238 codes (SHA1, 6 digits, 30s step, ±1 step).
type OTP struct {
	issuer string
}

func NewOTP(issuer string) *OTP {
	return &OTP{issuer: issuer}
}

func (o *OTP) opts(account string, secret []byte) totp.GenerateOpts {
	return totp.GenerateOpts{
		Issuer:      o.issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		Secret:      secret,
	}
}

// GenerateSecret returns a fresh base32 secret for account.
func (o *OTP) GenerateSecret(account string) (string, error) {
	key, err := totp.Generate(o.opts(account, nil))
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ProvisioningURI builds the otpauth:// URI authenticator apps enroll from.
func (o *OTP) ProvisioningURI(secret, account string) (string, error) {
	raw, err := secretEncoding.DecodeString(strings.ToUpper(strings.TrimRight(secret, "=")))
	if err != nil {
		return "", fmt.Errorf("otp secret: %w", err)
	}
	key, err := totp.Generate(o.opts(account, raw))
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// QRCodePNG renders uri as a PNG QR code.
func (o *OTP) QRCodePNG(uri string) ([]byte, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, err
	}
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Verify checks code against secret at time at. A missing secret or code never verifies.
func (o *OTP) Verify(secret, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
