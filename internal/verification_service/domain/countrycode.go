package domain

import "strings"

// Ordered longest-prefix-first: every 3-digit calling code is tried before
// any 2-digit one, so "852..." resolves to Hong Kong rather than China ("85"
// is not a code, but "8529..." must never match "86"-style prefixes either).
var threeDigitCallingCodes = []string{
	"211", "212", "213", "216", "218", "220", "221", "222", "223", "224",
	"225", "226", "227", "228", "229", "230", "231", "232", "233", "234",
	"235", "236", "237", "238", "239", "240", "241", "242", "243", "244",
	"245", "246", "248", "249", "250", "251", "252", "253", "254", "255",
	"256", "257", "258", "260", "261", "262", "263", "264", "265", "266",
	"267", "268", "269", "290", "291", "297", "298", "299", "350", "351",
	"352", "353", "354", "355", "356", "357", "358", "359", "370", "371",
	"372", "373", "374", "375", "376", "377", "378", "380", "381", "382",
	"383", "385", "386", "387", "389", "420", "421", "423", "500", "501",
	"502", "503", "504", "505", "506", "507", "508", "509", "590", "591",
	"592", "593", "594", "595", "596", "597", "598", "599", "670", "672",
	"673", "674", "675", "676", "677", "678", "679", "680", "681", "682",
	"683", "685", "686", "687", "688", "689", "690", "691", "692", "850",
	"852", "853", "855", "856", "880", "886", "960", "961", "962", "963",
	"964", "965", "966", "967", "968", "970", "971", "972", "973", "974",
	"975", "976", "977", "992", "993", "994", "995", "996", "998",
}

var twoDigitCallingCodes = []string{
	"20", "27", "30", "31", "32", "33", "34", "36", "39", "40", "41", "43",
	"44", "45", "46", "47", "48", "49", "51", "52", "53", "54", "55", "56",
	"57", "58", "60", "61", "62", "63", "64", "65", "66", "81", "82", "84",
	"86", "90", "91", "92", "93", "94", "95", "98",
}

// ResolveCountryCode extracts the international calling code from a raw
// phone string. It is purely table-driven; no network calls.
//
// The final fallback assumes the first 3 digits of an 11-or-more-digit
// number are the calling code. That heuristic is biased toward one region's
// numbering plan and is kept only for compatibility; do not extend it.
func ResolveCountryCode(raw string) (string, bool) {
	digits := stripNonDigits(raw)
	if digits == "" {
		return "", false
	}

	if code, ok := matchCallingCodePrefix(digits); ok {
		return code, true
	}

	if strings.HasPrefix(strings.TrimSpace(raw), "+") {
		afterPlus := stripNonDigits(strings.TrimSpace(raw)[1:])
		if code, ok := matchCallingCodePrefix(afterPlus); ok {
			return code, true
		}
	}

	if len(digits) >= 11 {
		return digits[:3], true
	}
	return "", false
}

func matchCallingCodePrefix(digits string) (string, bool) {
	for _, code := range threeDigitCallingCodes {
		if strings.HasPrefix(digits, code) {
			return code, true
		}
	}
	for _, code := range twoDigitCallingCodes {
		if strings.HasPrefix(digits, code) {
			return code, true
		}
	}
	return "", false
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
