package callerid

import (
	"strconv"

	"voice-orchestrator/internal/apperr"
	"voice-orchestrator/internal/numbers"
	"voice-orchestrator/internal/phone"
)

// Select picks the caller id presented to a lead ("local presence").
//
// Priority:
//  1. Exact area-code match (first-listed wins).
//  2. Smallest numeric distance between area codes (first-listed wins on ties).
//  3. First owned number when neither side has a usable area code.
//
// An empty owned set is a hard failure: there is no provider-default caller id.
func Select(owned []numbers.OwnedNumber, leadNumber string) (string, error) {
	if len(owned) == 0 {
		return "", apperr.NoOwnedNumbers()
	}

	leadAC, leadKnown := phone.AreaCode(phone.Normalize(leadNumber))
	if leadKnown {
		for _, n := range owned {
			if areaCodeOf(n) == leadAC {
				return n.Number, nil
			}
		}
	}

	if leadKnown {
		target, _ := strconv.Atoi(leadAC)
		best := ""
		bestDist := -1
		for _, n := range owned {
			ac := areaCodeOf(n)
			if ac == "" {
				continue
			}
			v, err := strconv.Atoi(ac)
			if err != nil {
				continue
			}
			d := v - target
			if d < 0 {
				d = -d
			}
			if bestDist < 0 || d < bestDist {
				best, bestDist = n.Number, d
			}
		}
		if best != "" {
			return best, nil
		}
	}

	return owned[0].Number, nil
}

// areaCodeOf prefers the stored area code and falls back to parsing the number.
func areaCodeOf(n numbers.OwnedNumber) string {
	if len(n.AreaCode) == 3 {
		return n.AreaCode
	}
	ac, _ := phone.AreaCode(n.Number)
	return ac
}
