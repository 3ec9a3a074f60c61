package checkout

import (
	"crypto/rand"
	"fmt"
)

// Ambiguous characters (0/O, 1/I) are excluded so support staff can read
// order numbers back over the phone.
const orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const orderNumberLength = 8

// GenerateOrderNumber returns a human-facing identifier such as
// ORD-7KQ2M9XV. Uniqueness is enforced by the orders.order_number unique
// index; collisions are handled by retrying the checkout transaction.
func GenerateOrderNumber() (string, error) {
	buf := make([]byte, orderNumberLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("checkout: failed to read random bytes: %w", err)
	}

	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}

	return "ORD-" + string(buf), nil
}
