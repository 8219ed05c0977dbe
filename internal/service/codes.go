package service

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// maxCodeAttempts bounds retries when a generated identifier is taken.
const maxCodeAttempts = 10

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// newConfirmationCode builds RES<yyyymmdd><hhmm><nnn>.
func newConfirmationCode(date time.Time, hhmm string) string {
	return fmt.Sprintf("RES%s%s%03d",
		date.Format("20060102"),
		strings.ReplaceAll(hhmm, ":", ""),
		rand.IntN(1000))
}

// newOrderNumber builds ORD-<yyyymmdd>-<6 base36 chars> from the UTC date.
func newOrderNumber(now time.Time) string {
	var b strings.Builder
	b.Grow(6)
	for range 6 {
		b.WriteByte(base36[rand.IntN(len(base36))])
	}
	return "ORD-" + now.UTC().Format("20060102") + "-" + b.String()
}
