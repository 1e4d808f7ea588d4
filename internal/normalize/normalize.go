// Package normalize cleans raw lead field values into canonical form.
// All functions are total: malformed input yields a best-effort value or
// an empty string, never an error.
package normalize

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/leadpipe/internal/model"
)

var (
	titleCaser   = cases.Title(language.English)
	phoneStripRe = regexp.MustCompile(`[\s\-().]`)
)

// Email lowercases and trims an email address.
func Email(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Domain extracts the domain portion of an email address, lowercased.
// Returns "" when the input has no @.
func Domain(email string) string {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// Name standardizes first/last names. When both are present each is
// title-cased. When only a full name is available it is split into
// first/last; a single-token name becomes the first name with an empty
// last name.
func Name(firstName, lastName, fullName string) (string, string) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	fullName = strings.TrimSpace(fullName)

	if firstName != "" && lastName != "" {
		return titleCaser.String(firstName), titleCaser.String(lastName)
	}

	if fullName != "" {
		return splitFullName(fullName)
	}

	// A lone first-name field may actually hold a full name.
	if firstName != "" {
		return splitFullName(firstName)
	}

	if lastName != "" {
		return "", titleCaser.String(lastName)
	}
	return "", ""
}

func splitFullName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return titleCaser.String(parts[0]), ""
	default:
		return titleCaser.String(parts[0]), titleCaser.String(parts[len(parts)-1])
	}
}

// Phone parses a phone number against the default region and formats it
// as E.164. The original string is preserved unchanged when parsing fails.
func Phone(phone, defaultRegion string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}

	cleaned := phoneStripRe.ReplaceAllString(phone, "")
	parsed, err := phonenumbers.Parse(cleaned, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return phone
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}

// JobTitle collapses whitespace and title-cases a job title.
func JobTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return ""
	}
	return titleCaser.String(title)
}

// URL defaults the scheme to https and strips trailing slashes.
func URL(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return ""
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	return strings.TrimRight(url, "/")
}

// Record normalizes every field of a raw record, deriving the company
// domain from the email when absent. The output is always fully populated
// even when individual fields fail to parse.
func Record(f model.RawFields) model.RawFields {
	out := f

	out.Email = Email(f.Email)
	if d := Domain(out.Email); d != "" {
		out.CompanyDomain = d
	} else {
		out.CompanyDomain = strings.ToLower(strings.TrimSpace(f.CompanyDomain))
	}

	out.FirstName, out.LastName = Name(f.FirstName, f.LastName, f.FullName)
	out.Phone = Phone(f.Phone, "US")
	out.JobTitle = JobTitle(f.JobTitle)
	out.LinkedInURL = URL(f.LinkedInURL)
	out.CompanyWebsite = URL(f.CompanyWebsite)
	out.CompanyName = strings.TrimSpace(f.CompanyName)
	out.CompanyIndustry = strings.TrimSpace(f.CompanyIndustry)

	return out
}
