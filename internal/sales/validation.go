package sales

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseQuantity accepts a JSON number with no fractional part (3, 3.0, 3e0)
// or a JSON string holding an integer, and returns it when it is positive.
func ParseQuantity(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: quantity is required", ErrValidation)
	}

	var n int
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, errNotInteger
		}
		v, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return 0, errNotInteger
		}
		n = v
	} else {
		d, err := decimal.NewFromString(string(raw))
		if err != nil || !d.IsInteger() {
			return 0, errNotInteger
		}
		n = int(d.IntPart())
		if !d.Equal(decimal.NewFromInt(int64(n))) {
			return 0, errNotInteger
		}
	}

	if n <= 0 {
		return 0, fmt.Errorf("%w: quantity must be a positive integer", ErrValidation)
	}
	return n, nil
}

var errNotInteger = fmt.Errorf("%w: quantity must be a valid integer", ErrValidation)

// Validate checks the request without calling anything.
func (r SaleRequest) Validate() error {
	switch {
	case r.CustomerUsername == "":
		return fmt.Errorf("%w: customer_username is required", ErrValidation)
	case r.ItemName == "":
		return fmt.Errorf("%w: item_name is required", ErrValidation)
	case r.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be a positive integer", ErrValidation)
	}
	return nil
}

// ParseSaleRequest builds a normalized SaleRequest from raw request fields,
// reporting missing names before a bad quantity.
func ParseSaleRequest(customer, item string, rawQuantity json.RawMessage) (SaleRequest, error) {
	req := SaleRequest{CustomerUsername: customer, ItemName: item}.Normalize()
	req.Quantity = 1
	if err := req.Validate(); err != nil {
		return SaleRequest{}, err
	}
	n, err := ParseQuantity(rawQuantity)
	if err != nil {
		return SaleRequest{}, err
	}
	req.Quantity = n
	return req, nil
}
