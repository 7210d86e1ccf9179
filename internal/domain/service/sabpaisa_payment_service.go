package service

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"supportchat/internal/domain/entity"
	"supportchat/pkg/logger"
)

// SabPaisaConfig mirrors the SABPAISA_* settings.
type SabPaisaConfig struct {
	BaseURL           string
	ClientCode        string
	TransUserName     string
	TransUserPassword string
	AuthKey           string
	AuthIV            string
}

// SabPaisaPaymentService builds encrypted init requests and decodes the
// encrypted responses the provider posts back.
type SabPaisaPaymentService struct {
	cfg SabPaisaConfig
}

func NewSabPaisaPaymentService(cfg SabPaisaConfig) (*SabPaisaPaymentService, error) {
	if cfg.ClientCode == "" || cfg.TransUserName == "" || cfg.TransUserPassword == "" {
		return nil, errors.New("sabpaisa: client code and transaction credentials are required")
	}
	if _, err := newSabPaisaCipher(cfg.AuthKey, cfg.AuthIV); err != nil {
		return nil, err
	}
	return &SabPaisaPaymentService{cfg: cfg}, nil
}

func (s *SabPaisaPaymentService) CreateSession(ctx context.Context, req PaymentSessionRequest) (*entity.PaymentSession, error) {
	logger.Info("Creating SabPaisa session %s for %s, amount %s", req.ClientTxnID, req.PayerName, req.Amount)

	form := url.Values{}
	form.Set("payerName", req.PayerName)
	form.Set("clientTxnId", req.ClientTxnID)
	form.Set("amount", req.Amount)
	form.Set("clientCode", s.cfg.ClientCode)
	form.Set("transUserName", s.cfg.TransUserName)
	form.Set("transUserPassword", s.cfg.TransUserPassword)
	form.Set("callbackUrl", req.CallbackURL)
	form.Set("channelId", "W")

	encData, err := s.encrypt(form.Encode())
	if err != nil {
		return nil, fmt.Errorf("sabpaisa: encrypt request: %w", err)
	}

	return &entity.PaymentSession{
		Action: s.cfg.BaseURL,
		Fields: map[string]string{
			"encData":    encData,
			"clientCode": s.cfg.ClientCode,
		},
		CorrelationID: req.ClientTxnID,
		Amount:        req.Amount,
		PayerName:     req.PayerName,
	}, nil
}

// DecodeResult decrypts encResponse. Any status other than SUCCESS is
// reported as is; the caller decides what it means.
func (s *SabPaisaPaymentService) DecodeResult(encResponse string) (*entity.PaymentResult, error) {
	plain, err := s.decrypt(encResponse)
	if err != nil {
		return nil, fmt.Errorf("sabpaisa: decrypt response: %w", err)
	}

	values, err := url.ParseQuery(plain)
	if err != nil {
		return nil, fmt.Errorf("sabpaisa: parse response: %w", err)
	}

	result := &entity.PaymentResult{
		Status:        strings.ToUpper(values.Get("status")),
		Amount:        firstNonEmpty(values.Get("paidAmount"), values.Get("amount")),
		CorrelationID: values.Get("clientTxnId"),
		ProviderTxnID: values.Get("sabpaisaTxnId"),
		PaymentMode:   values.Get("paymentMode"),
	}
	if result.Status == "" {
		return nil, errors.New("sabpaisa: response has no status")
	}
	return result, nil
}

func (s *SabPaisaPaymentService) encrypt(plain string) (string, error) {
	c, err := newSabPaisaCipher(s.cfg.AuthKey, s.cfg.AuthIV)
	if err != nil {
		return "", err
	}
	return c.encrypt([]byte(plain)), nil
}

func (s *SabPaisaPaymentService) decrypt(encoded string) (string, error) {
	c, err := newSabPaisaCipher(s.cfg.AuthKey, s.cfg.AuthIV)
	if err != nil {
		return "", err
	}
	plain, err := c.decrypt(encoded)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// sabPaisaCipher is AES-CBC with PKCS#7 padding and base64 framing.
type sabPaisaCipher struct {
	block cipher.Block
	iv    []byte
}

func newSabPaisaCipher(key, iv string) (*sabPaisaCipher, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("sabpaisa: auth key: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("sabpaisa: auth iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	return &sabPaisaCipher{block: block, iv: []byte(iv)}, nil
}

func (c *sabPaisaCipher) encrypt(plain []byte) string {
	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out)
}

func (c *sabPaisaCipher) decrypt(encoded string) ([]byte, error) {
	// Form posts may turn '+' into ' '.
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(encoded, " ", "+"))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a whole number of blocks")
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, raw)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errors.New("invalid padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
