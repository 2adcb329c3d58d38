package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleImpressum = `Impressum
Angaben gemäß § 5 TMG
Firma: Acme Robotics GmbH
Musterstraße 12
80331 München
Geschäftsführer: Dr. Erika Mustermann
Telefon: +49 89 1234567
E-Mail: info@acme-robotics.de
Registergericht: Amtsgericht München
Registernummer: HRB 123456
USt-IdNr: DE123456789`

func TestExtractImpressumFacts(t *testing.T) {
	facts := ExtractImpressumFacts(sampleImpressum)

	assert.Equal(t, "Acme Robotics GmbH", facts["legal_name"])
	assert.Equal(t, "80331", facts["postal_code"])
	assert.Equal(t, "München", facts["city"])
	assert.Equal(t, "123456", facts["hrb_number"])
	assert.Equal(t, "München", facts["registry_court"])
	assert.Equal(t, "DE123456789", facts["vat_id"])
	assert.Equal(t, "Dr. Erika Mustermann", facts["managing_director"])
	assert.Equal(t, "info@acme-robotics.de", facts["email"])
	assert.Equal(t, "+49 89 1234567", facts["phone"])
}

func TestExtractImpressumFacts_VATOnly(t *testing.T) {
	facts := ExtractImpressumFacts("USt-IdNr: DE123456789")
	assert.Equal(t, "DE123456789", facts["vat_id"])
	assert.Len(t, facts, 1)
}

func TestExtractImpressumFacts_Variants(t *testing.T) {
	tests := []struct {
		name string
		text string
		key  string
		want string
	}{
		{"vat english", "VAT: GB987654321", "vat_id", "GB987654321"},
		{"vat with dot", "USt-IdNr.: DE111222333", "vat_id", "DE111222333"},
		{"vat lower case country", "USt-IdNr.: de123456789", "vat_id", "DE123456789"},
		{"handelsregister", "Handelsregister: 98765", "hrb_number", "98765"},
		{"hr without b", "HR 4711", "hrb_number", "4711"},
		{"managing director english", "Managing Director: John Smith", "managing_director", "John Smith"},
		{"phone label", "Phone: (030) 12 34-56", "phone", "(030) 12 34-56"},
		{"betreiber", "Betreiber: Beispiel AG", "legal_name", "Beispiel AG"},
		{"city with hyphen", "10115 Berlin-Mitte", "city", "Berlin-Mitte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractImpressumFacts(tt.text)[tt.key])
		})
	}
}

func TestExtractImpressumFacts_AbsentKeysOmitted(t *testing.T) {
	facts := ExtractImpressumFacts("Welcome to our homepage. We sell widgets.")
	assert.Empty(t, facts)

	for _, v := range ExtractImpressumFacts(sampleImpressum) {
		assert.NotEmpty(t, v)
	}
}

func TestExtractImpressumFacts_NoFalsePositives(t *testing.T) {
	facts := ExtractImpressumFacts("Unternehmensberatung for Hotel 5 stars, Telefax only")
	_, hasLegal := facts["legal_name"]
	_, hasPhone := facts["phone"]
	assert.False(t, hasLegal)
	assert.False(t, hasPhone)
}

func TestExtractLinkedInFacts(t *testing.T) {
	text := `Acme GmbH
Industry
Industrial Automation
Company size
50-100 employees
Headquarters
Munich, Bavaria
Type
Privately Held
Founded 2012
12,345 followers`

	facts := ExtractLinkedInFacts(text)
	assert.Equal(t, "50-100 employees", facts["company_size"])
	assert.Equal(t, "Munich, Bavaria", facts["headquarters"])
	assert.Equal(t, "Industrial Automation", facts["industry"])
	assert.Equal(t, "2012", facts["founded"])
	assert.Equal(t, "Privately Held", facts["company_type"])
	assert.Equal(t, "12345", facts["followers"])
}

func TestExtractLinkedInFacts_InlineSize(t *testing.T) {
	facts := ExtractLinkedInFacts("Company size 50-100 employees")
	assert.Equal(t, "50-100 employees", facts["company_size"])

	facts = ExtractLinkedInFacts("Company size 10,001+ employees")
	assert.Equal(t, "10,001+ employees", facts["company_size"])
}

func TestExtractLinkedInFacts_Empty(t *testing.T) {
	assert.Empty(t, ExtractLinkedInFacts("Sign in to see more"))
}

func TestExtractRating(t *testing.T) {
	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{"Arbeitgeber-Bewertung 4,2 von 5 Sternen", "4.2", true},
		{"Rated 3.8 out of 5 by employees", "3.8", true},
		{"First 4,5 von 5 then 2,0 von 5", "4.5", true},
		{"No rating yet", "", false},
		{"45 von 5", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ExtractRating(tt.text)
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
