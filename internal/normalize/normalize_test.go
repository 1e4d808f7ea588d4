package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadpipe/internal/model"
)

func TestEmail(t *testing.T) {
	assert.Equal(t, "jane@acme.com", Email("  Jane@Acme.COM  "))
	assert.Equal(t, "", Email("   "))
}

func TestDomain(t *testing.T) {
	assert.Equal(t, "acme.com", Domain("jane@Acme.com"))
	assert.Equal(t, "", Domain("not-an-email"))
	assert.Equal(t, "", Domain("trailing@"))
}

func TestNameBothGiven(t *testing.T) {
	first, last := Name("jane", "DOE", "")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe", last)
}

func TestNameFullNameParsed(t *testing.T) {
	first, last := Name("", "", "jane marie doe")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe", last)
}

func TestNameSingleToken(t *testing.T) {
	first, last := Name("", "", "madonna")
	assert.Equal(t, "Madonna", first)
	assert.Equal(t, "", last)
}

func TestNameFirstFieldHoldsFullName(t *testing.T) {
	first, last := Name("jane doe", "", "")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe", last)
}

func TestNameEmpty(t *testing.T) {
	first, last := Name("", "", "")
	assert.Equal(t, "", first)
	assert.Equal(t, "", last)
}

func TestPhoneE164(t *testing.T) {
	assert.Equal(t, "+14155552671", Phone("(415) 555-2671", "US"))
	assert.Equal(t, "+14155552671", Phone("415.555.2671", "US"))
	assert.Equal(t, "+442071838750", Phone("+44 20 7183 8750", "US"))
}

func TestPhoneUnparseablePreserved(t *testing.T) {
	assert.Equal(t, "not a phone", Phone("not a phone", "US"))
	assert.Equal(t, "123", Phone("123", "US"))
	assert.Equal(t, "", Phone("  ", "US"))
}

func TestJobTitle(t *testing.T) {
	assert.Equal(t, "Vp Of Engineering", JobTitle("  vp   of  engineering "))
	assert.Equal(t, "", JobTitle("   "))
}

func TestURL(t *testing.T) {
	assert.Equal(t, "https://acme.com", URL("acme.com/"))
	assert.Equal(t, "http://acme.com", URL("http://acme.com///"))
	assert.Equal(t, "https://www.linkedin.com/in/jane", URL("https://www.linkedin.com/in/jane/"))
	assert.Equal(t, "", URL(""))
}

func TestRecord(t *testing.T) {
	out := Record(model.RawFields{
		Email:          "  Jane.Doe@Acme.COM ",
		FullName:       "jane doe",
		Phone:          "(415) 555-2671",
		JobTitle:       "vp of  sales",
		LinkedInURL:    "linkedin.com/in/janedoe/",
		CompanyName:    " Acme Inc ",
		CompanyWebsite: "acme.com/",
	})

	assert.Equal(t, "jane.doe@acme.com", out.Email)
	assert.Equal(t, "acme.com", out.CompanyDomain)
	assert.Equal(t, "Jane", out.FirstName)
	assert.Equal(t, "Doe", out.LastName)
	assert.Equal(t, "+14155552671", out.Phone)
	assert.Equal(t, "Vp Of Sales", out.JobTitle)
	assert.Equal(t, "https://linkedin.com/in/janedoe", out.LinkedInURL)
	assert.Equal(t, "Acme Inc", out.CompanyName)
	assert.Equal(t, "https://acme.com", out.CompanyWebsite)
}

func TestRecordMalformedInputIsTotal(t *testing.T) {
	out := Record(model.RawFields{
		Email: "garbage",
		Phone: "???",
	})

	assert.Equal(t, "garbage", out.Email)
	assert.Equal(t, "", out.CompanyDomain)
	assert.Equal(t, "???", out.Phone)
}
