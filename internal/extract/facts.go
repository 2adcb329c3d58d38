package extract

import (
	"regexp"
	"strings"
)

// Impressum patterns. Each runs independently; a miss leaves the key out.
var (
	legalNameRe        = regexp.MustCompile(`(?i)\b(?:Firma|Unternehmen|Betreiber)[:\s]+([^\n]+)`)
	postalCityRe       = regexp.MustCompile(`\b(\d{5})[ \t]+([A-Za-zäöüÄÖÜß][A-Za-zäöüÄÖÜß \-]*)`)
	registerNumberRe   = regexp.MustCompile(`(?i)\b(?:HRB?|Handelsregister)[.:\s]*(\d+)`)
	registryCourtRe    = regexp.MustCompile(`(?i)\b(?:Registergericht|Amtsgericht)[:\s]+(?:Amtsgericht\s+)?([^\n,]+)`)
	vatIDRe            = regexp.MustCompile(`\b(?i:USt\.?-?Id(?:Nr)?|VAT(?:[ -]?ID)?)\.?[:\s]*((?i:[A-Z]{2})\d+)`)
	managingDirectorRe = regexp.MustCompile(`(?i)(?:Geschäftsführ(?:er|erin|ung)|\bCEO|\bManaging Director)[:\s]+([^\n]+)`)
	emailRe            = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRe            = regexp.MustCompile(`(?i)\b(?:Tel(?:efon)?|Phone)[.:\s]*(\+?[\d (][\d \-/()]*\d)`)
)

// ExtractImpressumFacts pulls legal-disclosure facts out of impressum text:
// legal_name, postal_code, city, hrb_number, registry_court, vat_id,
// managing_director, email, phone.
func ExtractImpressumFacts(text string) map[string]string {
	facts := make(map[string]string)

	setFirst(facts, "legal_name", legalNameRe, text)

	if m := postalCityRe.FindStringSubmatch(text); m != nil {
		if city := strings.TrimSpace(m[2]); city != "" {
			facts["postal_code"] = m[1]
			facts["city"] = city
		}
	}

	setFirst(facts, "hrb_number", registerNumberRe, text)
	setFirst(facts, "registry_court", registryCourtRe, text)

	if m := vatIDRe.FindStringSubmatch(text); m != nil {
		facts["vat_id"] = strings.ToUpper(m[1])
	}

	setFirst(facts, "managing_director", managingDirectorRe, text)

	if email := emailRe.FindString(text); email != "" {
		facts["email"] = email
	}

	setFirst(facts, "phone", phoneRe, text)

	return facts
}

// LinkedIn about-page patterns.
var (
	companySizeRe  = regexp.MustCompile(`(?i)Company size\s*(\d[\d,.]*(?:\s*[-–]\s*\d[\d,.]*)?\+?\s*employees)`)
	headquartersRe = regexp.MustCompile(`(?i)Headquarters\s*([^\n]+)`)
	industryRe     = regexp.MustCompile(`(?i)\bIndustry\s*([^\n]+)`)
	foundedRe      = regexp.MustCompile(`(?i)Founded\s*(\d{4})`)
	companyTypeRe  = regexp.MustCompile(`(?i)\bType\s*([^\n]+)`)
	followersRe    = regexp.MustCompile(`(?i)(\d[\d,]*)\s*followers`)
)

// ExtractLinkedInFacts pulls company_size, headquarters, industry, founded,
// company_type and followers out of a LinkedIn company page's text.
func ExtractLinkedInFacts(text string) map[string]string {
	facts := make(map[string]string)

	setFirst(facts, "company_size", companySizeRe, text)
	setFirst(facts, "headquarters", headquartersRe, text)
	setFirst(facts, "industry", industryRe, text)
	setFirst(facts, "founded", foundedRe, text)
	setFirst(facts, "company_type", companyTypeRe, text)

	if m := followersRe.FindStringSubmatch(text); m != nil {
		facts["followers"] = strings.ReplaceAll(m[1], ",", "")
	}

	return facts
}

var ratingRe = regexp.MustCompile(`(?i)(\d[,.]\d)\s*(?:von|out of)\s*5`)

// ExtractRating finds the first "4,2 von 5" / "4.2 out of 5" style rating
// and returns it with a decimal point.
func ExtractRating(text string) (string, bool) {
	m := ratingRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.Replace(m[1], ",", ".", 1), true
}

// setFirst stores the trimmed first capture group under key, skipping
// empty captures.
func setFirst(facts map[string]string, key string, re *regexp.Regexp, text string) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return
	}
	if v := strings.TrimSpace(m[1]); v != "" {
		facts[key] = v
	}
}
