// Package validate holds the pure per-step input validators.
//
// Every validator maps raw user text to a Result; the engine never mutates
// collected data or advances a step on an invalid Result. Validation failures
// are values, not errors; errors are reserved for infrastructure faults.
package validate

import (
	"strings"
	"time"
)

// Result is the universal validator contract.
type Result struct {
	Valid      bool
	Normalized string
	// Err is the user-facing re-prompt text when Valid is false.
	Err string
}

func ok(normalized string) Result {
	return Result{Valid: true, Normalized: normalized}
}

func fail(msg string) Result {
	return Result{Err: msg}
}

// maxNameLen bounds free-text name answers.
const maxNameLen = 100

// Skip is the literal token that bypasses optional collection steps.
const Skip = "skip"

// IDNumber validates a South African ID number. The literal "skip"
// (case-insensitive) is always accepted and normalizes to "skip". Otherwise
// the input must be exactly 13 digits whose check digit matches the national
// weighted-sum algorithm.
func IDNumber(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, Skip) {
		return ok(Skip)
	}
	if len(trimmed) != 13 || !allDigits(trimmed) {
		return fail("ID number must be exactly 13 digits. Please try again, or type skip.")
	}
	if !saIDChecksumValid(trimmed) {
		return fail("Invalid SA ID number. Please check the digits and try again, or type skip.")
	}
	return ok(trimmed)
}

// saIDChecksumValid computes the national check digit over the first 12
// digits: digits in even positions (1-indexed) are doubled with digit-sum
// reduction, summed with the odd-position digits, and the check digit is the
// tens complement of the total mod 10.
func saIDChecksumValid(s string) bool {
	sum := 0
	for i := 0; i < 12; i++ {
		d := int(s[i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	return check == int(s[12]-'0')
}

// Email validates and lowercases an email address. The check is deliberately
// shallow: one "@" with a domain segment containing a dot. Deliverability is
// the mail provider's problem.
func Email(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	at := strings.Index(trimmed, "@")
	if at <= 0 || at != strings.LastIndex(trimmed, "@") {
		return fail("Please enter a valid email address, e.g. thandi@example.com.")
	}
	domainPart := trimmed[at+1:]
	if len(domainPart) < 3 || !strings.Contains(domainPart, ".") ||
		strings.HasPrefix(domainPart, ".") || strings.HasSuffix(domainPart, ".") {
		return fail("Please enter a valid email address, e.g. thandi@example.com.")
	}
	if strings.ContainsAny(trimmed, " \t") {
		return fail("Please enter a valid email address, e.g. thandi@example.com.")
	}
	return ok(strings.ToLower(trimmed))
}

// Phone validates a South African phone number. Spaces and dashes are
// stripped; the local 0XXXXXXXXX form normalizes to +27XXXXXXXXX and an
// already-international +27 form passes through unchanged.
func Phone(raw string) Result {
	cleaned := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(cleaned, "+27"):
		rest := cleaned[3:]
		if len(rest) == 9 && allDigits(rest) {
			return ok(cleaned)
		}
	case strings.HasPrefix(cleaned, "0"):
		rest := cleaned[1:]
		if len(rest) == 9 && allDigits(rest) {
			return ok("+27" + rest)
		}
	}
	return fail("Please enter a valid SA phone number, e.g. 082 123 4567.")
}

// maxChildAge bounds enrolment: children older than this are rejected.
const maxChildAge = 7

// DateOfBirth validates a child's date of birth in DD/MM/YYYY order with "/"
// or "-" separators, relative to now. The normalized form is ISO YYYY-MM-DD.
func DateOfBirth(raw string, now time.Time) Result {
	trimmed := strings.TrimSpace(raw)
	var dob time.Time
	var err error
	for _, layout := range []string{"02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006"} {
		dob, err = time.Parse(layout, trimmed)
		if err == nil {
			break
		}
	}
	if err != nil {
		return fail("Please enter the date of birth as DD/MM/YYYY, e.g. 14/03/2022.")
	}
	// Compare at date granularity so a birthday today is neither "future"
	// nor over-age regardless of the time of day.
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if dob.After(today) {
		return fail("That date is in the future. Please enter the child's real date of birth.")
	}
	if dob.Before(today.AddDate(-maxChildAge, 0, 0)) {
		return fail("We can only enrol children up to 7 years old.")
	}
	return ok(dob.Format("2006-01-02"))
}

// Name validates a person name: non-empty after trimming and at most 100
// characters.
func Name(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fail("Please enter a name.")
	}
	if len(trimmed) > maxNameLen {
		return fail("That name is too long. Please keep it under 100 characters.")
	}
	return ok(trimmed)
}

// FreeText accepts any non-empty answer, trimmed. Used for steps that record
// verbatim notes such as allergies.
func FreeText(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fail("Please type an answer, or \"none\".")
	}
	return ok(trimmed)
}

// CommunicationPrefs maps free text onto channel opt-ins. Unrecognized input
// defaults to both channels; see the flow table notes.
func CommunicationPrefs(raw string) (whatsapp, email bool) {
	switch normalized := strings.ToLower(strings.TrimSpace(raw)); {
	case strings.Contains(normalized, "whatsapp") && strings.Contains(normalized, "only"):
		return true, false
	case strings.Contains(normalized, "email") && strings.Contains(normalized, "only"):
		return false, true
	default:
		return true, true
	}
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
