package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/ledgerkit/internal/normalize"
)

// SourceIdentity is the form of a source file name used in fingerprints: the
// lower-cased base name, so moving a file does not create new transactions.
func SourceIdentity(path string) string {
	if path == "" {
		return ""
	}
	return strings.ToLower(filepath.Base(path))
}

// Fingerprint hashes the identity fields of a transaction.
func Fingerprint(accountID string, date time.Time, amount decimal.Decimal, normalized, sourceFile string) string {
	h := sha256.New()
	for _, part := range []string{
		accountID,
		normalize.FormatDate(date),
		amount.StringFixed(2),
		normalized,
		SourceIdentity(sourceFile),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}
