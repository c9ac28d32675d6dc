package canonical

import (
	"regexp"
	"strings"

	"github.com/jask/ledgerkit/internal/normalize"
)

var (
	paymentHint   = regexp.MustCompile(`(?i)\b(pago|pagos|abono|payment|pymt)\b`)
	processorHint = regexp.MustCompile(`(?i)\b(mercadopago|merpago|paypal|alipay|clip\s+mx|conekta)\b`)
	serviceHint   = regexp.MustCompile(`(?i)(netflix|spotify|nintendo|hbo|disney|openai|chatgpt|duolingo|google|youtube)`)
	refundHint    = regexp.MustCompile(`(?i)\b(reembolso|devolucion|refund)\b`)
	cashbackHint  = regexp.MustCompile(`(?i)\b(cashback|bonificacion)\b`)
)

// InferKind classifies a movement from its description. Known services are
// always charges; processor movements are charges unless they read as a
// thank-you payment; a fiscal id suggests a purchase.
func InferKind(description string, negative bool, fiscalID string) Kind {
	d := normalize.Fold(description)
	switch {
	case serviceHint.MatchString(d):
		return KindCharge
	case cashbackHint.MatchString(d):
		return KindCashback
	case refundHint.MatchString(d):
		return KindRefund
	case processorHint.MatchString(d):
		up := strings.ToUpper(d)
		if strings.Contains(up, "SU PAGO GRACIAS") || strings.Contains(up, "GRACIAS SPEI") {
			return KindPayment
		}
		return KindCharge
	case paymentHint.MatchString(d):
		return KindPayment
	case strings.TrimSpace(fiscalID) != "":
		return KindCharge
	case negative:
		return KindCharge
	default:
		return KindPayment
	}
}
