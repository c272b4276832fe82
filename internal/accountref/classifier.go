// Package accountref classifies generic bank references into a payment purpose
// and pulls loosely named fields out of bank webhook payloads.
package accountref

import (
	"regexp"
	"strings"

	"github.com/Emmanuel-rotich2/Kingsway-sub012/internal/domain"
)

var (
	numericRef   = regexp.MustCompile(`^\d{5,}$`)
	admissionRef = regexp.MustCompile(`(?i)^ADM\d+$`)
)

type rule struct {
	purpose domain.PaymentPurpose
	match   func(ref, upperRef, narration string) bool
}

func prefixOrNarration(prefix, keyword string) func(ref, upperRef, narration string) bool {
	return func(_, upperRef, narration string) bool {
		return strings.HasPrefix(upperRef, prefix) || strings.Contains(narration, keyword)
	}
}

// Evaluated in order, first match wins.
var rules = []rule{
	{domain.PurposeFeePayment, func(ref, _, _ string) bool { return numericRef.MatchString(ref) }},
	{domain.PurposeAdmission, func(ref, _, _ string) bool { return admissionRef.MatchString(ref) }},
	{domain.PurposeTransport, prefixOrNarration("TRP", "transport")},
	{domain.PurposePayroll, prefixOrNarration("PAY", "payroll")},
	{domain.PurposeDepartment, prefixOrNarration("DEPT", "department")},
	{domain.PurposeCheque, prefixOrNarration("CHQ", "cheque")},
}

// Classify returns the payment purpose for an account reference and narration,
// or PurposeUnclassified when no rule matches.
func Classify(accountRef, narration string) domain.PaymentPurpose {
	ref := strings.TrimSpace(accountRef)
	upper := strings.ToUpper(ref)
	narr := strings.ToLower(narration)

	for _, r := range rules {
		if r.match(ref, upper, narr) {
			return r.purpose
		}
	}
	return domain.PurposeUnclassified
}
