package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/flowsyai/backend/internal/audit"
	"github.com/flowsyai/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
	"golang.org/x/crypto/blake2b"
)

const (
	defaultVoucherTTL = 24 * time.Hour
	voucherQRSize     = 256
)

var voucherEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

type VoucherConfig struct {
	TTL time.Duration
	// HashSecret keys the BLAKE2b hash under which codes are stored, at most 64 bytes.
	HashSecret string
}

type Voucher struct {
	Code      string    `json:"code"`
	QRImage   string    `json:"qrImage"`
	Amount    int64     `json:"amount"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type voucherRecord struct {
	IssuerID string    `json:"issuerId"`
	Amount   int64     `json:"amount"`
	IssuedAt time.Time `json:"issuedAt"`
}

// VoucherService issues one-shot bonus token codes. Redis holds only a
// keyed hash of each code.
type VoucherService struct {
	redis  *redis.Client
	ledger *LedgerService
	config VoucherConfig
	audit  *audit.Logger
	now    func() time.Time
	codes  func() (string, error)
}

func NewVoucherService(client *redis.Client, ledger *LedgerService, config VoucherConfig, auditLog *audit.Logger) (*VoucherService, error) {
	if len(config.HashSecret) > blake2b.Size {
		return nil, fmt.Errorf("voucher hash secret must be at most %d bytes", blake2b.Size)
	}
	if config.TTL <= 0 {
		config.TTL = defaultVoucherTTL
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(nil)
	}
	return &VoucherService{
		redis:  client,
		ledger: ledger,
		config: config,
		audit:  auditLog,
		now:    time.Now,
		codes:  generateVoucherCode,
	}, nil
}

func (s *VoucherService) key(code string) (string, error) {
	h, err := blake2b.New256([]byte(s.config.HashSecret))
	if err != nil {
		return "", err
	}
	h.Write([]byte(normalizeVoucherCode(code)))
	return "voucher:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Issue creates a voucher worth amount tokens. ttl <= 0 uses the configured TTL.
func (s *VoucherService) Issue(ctx context.Context, issuerID string, amount int64, ttl time.Duration) (*Voucher, error) {
	if s.redis == nil {
		return nil, ErrRedisUnavailable
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if ttl <= 0 {
		ttl = s.config.TTL
	}

	code, err := s.codes()
	if err != nil {
		return nil, err
	}
	key, err := s.key(code)
	if err != nil {
		return nil, err
	}

	now := s.now()
	record, err := json.Marshal(voucherRecord{IssuerID: issuerID, Amount: amount, IssuedAt: now})
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, key, record, ttl).Err(); err != nil {
		return nil, fmt.Errorf("store voucher: %w", err)
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(voucherQRSize)); err != nil {
		return nil, err
	}

	s.audit.LogOperation(audit.EventVoucher, key, issuerID, fmt.Sprintf("issued %d tokens", amount))

	return &Voucher{
		Code:      code,
		QRImage:   base64.StdEncoding.EncodeToString(buf.Bytes()),
		Amount:    amount,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// Redeem credits the voucher to userID as a bonus. A code can be redeemed
// once; unknown, expired and spent codes all return ErrVoucherInvalid.
func (s *VoucherService) Redeem(ctx context.Context, userID, code string) (*models.TokenBalance, error) {
	if s.redis == nil {
		return nil, ErrRedisUnavailable
	}
	if normalizeVoucherCode(code) == "" {
		return nil, ErrVoucherInvalid
	}
	key, err := s.key(code)
	if err != nil {
		return nil, err
	}

	data, err := s.redis.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrVoucherInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("redeem voucher: %w", err)
	}

	var record voucherRecord
	if err := json.Unmarshal(data, &record); err != nil || record.Amount <= 0 {
		return nil, ErrVoucherInvalid
	}

	if _, err := s.ledger.Add(ctx, userID, record.Amount, models.TransactionBonus, "Voucher redemption"); err != nil {
		s.audit.LogError(key, userID, err)
		// Put the voucher back so the holder can retry.
		if restoreErr := s.redis.Set(context.WithoutCancel(ctx), key, data, s.config.TTL).Err(); restoreErr != nil {
			s.audit.LogError(key, userID, restoreErr)
		}
		return nil, err
	}

	s.audit.LogOperation(audit.EventVoucher, key, userID,
		fmt.Sprintf("redeemed %d tokens issued by %s", record.Amount, record.IssuerID))
	return s.ledger.GetAccount(ctx, userID)
}

// generateVoucherCode returns 20 base32 characters grouped as XXXXX-XXXXX-XXXXX-XXXXX.
func generateVoucherCode() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	raw := voucherEncoding.EncodeToString(b)[:20]
	return raw[0:5] + "-" + raw[5:10] + "-" + raw[10:15] + "-" + raw[15:20], nil
}

func normalizeVoucherCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}
