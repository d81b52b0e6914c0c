package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedPayload is returned when a consequence value cannot be decoded.
// The decoded Amount is still usable and carries the safe default of 0.
var ErrMalformedPayload = errors.New("malformed consequence payload")

// AmountKind discriminates decoded consequence values
type AmountKind int

const (
	AmountSet AmountKind = iota
	AmountAdd
	AmountCumulative
	AmountText
)

// Amount is the decoded form of Consequence.Value
type Amount struct {
	Kind AmountKind
	N    int
	Max  *int
	Text string
}

// DecodeAmount turns the authored string value into a typed Amount.
// On malformed input it returns the zero-valued Amount for the type together
// with an error wrapping ErrMalformedPayload.
func DecodeAmount(t ConsequenceType, raw string) (Amount, error) {
	value := strings.TrimSpace(raw)
	switch t {
	case ConsequenceAttribute:
		switch {
		case strings.HasPrefix(value, "+"):
			n, err := strconv.Atoi(value[1:])
			if err != nil {
				return Amount{Kind: AmountAdd}, malformed(t, raw)
			}
			return Amount{Kind: AmountAdd, N: n}, nil
		case strings.HasPrefix(value, "-"):
			n, err := strconv.Atoi(value[1:])
			if err != nil {
				return Amount{Kind: AmountAdd}, malformed(t, raw)
			}
			return Amount{Kind: AmountAdd, N: -n}, nil
		default:
			n, err := strconv.Atoi(value)
			if err != nil {
				return Amount{Kind: AmountSet}, malformed(t, raw)
			}
			return Amount{Kind: AmountSet, N: n}, nil
		}

	case ConsequenceRelationship, ConsequenceFaction:
		n, err := strconv.Atoi(value)
		if err != nil {
			return Amount{Kind: AmountAdd}, malformed(t, raw)
		}
		return Amount{Kind: AmountAdd, N: n}, nil

	case ConsequenceCumulative:
		deltaPart, maxPart, _ := strings.Cut(value, ":")
		amount := Amount{Kind: AmountCumulative}
		var bad bool
		n, err := strconv.Atoi(strings.TrimSpace(deltaPart))
		if err != nil {
			bad = true
		} else {
			amount.N = n
		}
		if maxPart = strings.TrimSpace(maxPart); maxPart != "" {
			m, err := strconv.Atoi(maxPart)
			if err != nil {
				bad = true
			} else {
				amount.Max = &m
			}
		}
		if bad {
			return amount, malformed(t, raw)
		}
		return amount, nil

	default:
		return Amount{Kind: AmountText, Text: raw}, nil
	}
}

// EncodeAmount renders an Amount back into the authored string form
func EncodeAmount(a Amount) string {
	switch a.Kind {
	case AmountAdd:
		if a.N < 0 {
			return strconv.Itoa(a.N)
		}
		return "+" + strconv.Itoa(a.N)
	case AmountCumulative:
		if a.Max == nil {
			return strconv.Itoa(a.N) + ":"
		}
		return strconv.Itoa(a.N) + ":" + strconv.Itoa(*a.Max)
	case AmountText:
		return a.Text
	default:
		return strconv.Itoa(a.N)
	}
}

func malformed(t ConsequenceType, raw string) error {
	return fmt.Errorf("%w: %s value %q", ErrMalformedPayload, t, raw)
}
