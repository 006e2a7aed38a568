// File: internal/formfill/classify_test.go
package formfill

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPassportExpiryVariants(t *testing.T) {
	cases := []struct {
		name        string
		id, field   string
		placeholder string
		label       string
		inputType   string
		want        FieldPurpose
	}{
		{"full name", "passport_expiry_date", "passport_expiry_date", "Passport Expiry Date", "Passport Expiry Date", "date", PurposePassportExpiryDate},
		{"short name", "passport_expiry", "passport_expiry", "Expiry Date", "Passport Expiry", "date", PurposePassportExpiryDate},
		{"bare expiry_date", "expiry_date", "expiry_date", "", "Expiry Date", "date", PurposePassportExpiryDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.id, tc.field, tc.placeholder, tc.label, tc.inputType)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClassifyOtherDateFieldsUnaffected(t *testing.T) {
	got := Classify("date_of_birth", "dob", "Date of Birth", "Birth Date", "date")
	assert.Equal(t, PurposeDateOfBirth, got)

	got = Classify("passport_issue_date", "issue_date", "Issue Date", "Passport Issue Date", "date")
	assert.Equal(t, PurposePassportIssueDate, got)
}

func TestClassifyCommonFields(t *testing.T) {
	cases := []struct {
		name        string
		id, field   string
		placeholder string
		label       string
		inputType   string
		want        FieldPurpose
	}{
		{"first name", "first_name", "first_name", "First Name", "", "text", PurposeFirstName},
		{"last name", "", "surname", "", "Last Name", "text", PurposeLastName},
		{"email by type", "contact", "contact", "", "", "email", PurposeEmail},
		{"phone", "", "phone", "Phone Number", "", "tel", PurposePhone},
		{"nationality", "nationality", "nationality", "", "", "text", PurposeNationality},
		{"gender", "gender", "gender", "", "", "text", PurposeGender},
		{"passport number", "passport_number", "passport_number", "", "", "text", PurposePassportNumber},
		{"confirm passport", "confirm_passport_number", "confirm_passport_number", "", "", "text", PurposeConfirmPassportNumber},
		{"issue place", "passport_issue_place", "issue_place", "Place of Issue", "", "text", PurposePassportIssuePlace},
		{"traveling to outranks country", "country_traveling_to", "country_traveling_to", "", "", "text", PurposeCountryTravelingTo},
		{"country", "country", "country", "", "", "text", PurposeCountry},
		{"city", "city", "city", "", "", "text", PurposeCity},
		{"visa type", "visa_type", "visa_type", "", "", "text", PurposeVisaType},
		{"national id", "national_id", "national_id", "", "", "text", PurposeNationalID},
		{"position", "position_applied_for", "position", "", "", "text", PurposePosition},
		{"appointment location", "appointment_location", "appointment_location", "", "", "text", PurposeAppointmentLocation},
		{"marital status", "marital_status", "marital_status", "", "", "text", PurposeMaritalStatus},
		{"unknown", "captcha_token", "captcha_token", "", "", "hidden", PurposeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.id, tc.field, tc.placeholder, tc.label, tc.inputType)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	got := Classify("PASSPORT_EXPIRY_DATE", "", "", "", "date")
	assert.Equal(t, PurposePassportExpiryDate, got)
}
