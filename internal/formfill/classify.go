// File: internal/formfill/classify.go
// Package formfill fills the booking form: it loads applicant data from CSV,
// classifies form inputs by their attributes, and types the matching values
// through the browser session.
package formfill

import "strings"

// FieldPurpose identifies what a form input is asking for.
type FieldPurpose string

const (
	PurposeUnknown               FieldPurpose = ""
	PurposeAppointmentLocation   FieldPurpose = "appointment_location"
	PurposeCountry               FieldPurpose = "country"
	PurposeCity                  FieldPurpose = "city"
	PurposeCountryTravelingTo    FieldPurpose = "country_traveling_to"
	PurposeFirstName             FieldPurpose = "first_name"
	PurposeLastName              FieldPurpose = "last_name"
	PurposeDateOfBirth           FieldPurpose = "date_of_birth"
	PurposeNationality           FieldPurpose = "nationality"
	PurposeGender                FieldPurpose = "gender"
	PurposeMaritalStatus         FieldPurpose = "marital_status"
	PurposePassportNumber        FieldPurpose = "passport_number"
	PurposeConfirmPassportNumber FieldPurpose = "confirm_passport_number"
	PurposePassportIssueDate     FieldPurpose = "passport_issue_date"
	PurposePassportIssuePlace    FieldPurpose = "passport_issue_place"
	PurposePassportExpiryDate    FieldPurpose = "passport_expiry_date"
	PurposeVisaType              FieldPurpose = "visa_type"
	PurposeEmail                 FieldPurpose = "email_address"
	PurposePhone                 FieldPurpose = "phone"
	PurposeNationalID            FieldPurpose = "national_id"
	PurposePosition              FieldPurpose = "position_applied_for"
)

// Classify determines a field's purpose from its attributes. Matching is
// case-insensitive over the concatenated id, name, placeholder and label.
// Expiry patterns are checked before the other date patterns: a bare
// "expiry_date" field is a passport expiry, never a birth or issue date.
func Classify(id, name, placeholder, label, inputType string) FieldPurpose {
	haystack := strings.ToLower(strings.Join([]string{id, name, placeholder, label}, " "))

	contains := func(patterns ...string) bool {
		for _, p := range patterns {
			if strings.Contains(haystack, p) {
				return true
			}
		}
		return false
	}

	switch {
	// Expiry outranks the generic date patterns.
	case contains("passport_expiry", "passport expiry", "expiry_date", "expiry date", "expiration"):
		return PurposePassportExpiryDate
	case contains("issue_place", "issue place", "place_of_issue", "place of issue"):
		return PurposePassportIssuePlace
	case contains("passport_issue", "passport issue", "issue_date", "issue date"):
		return PurposePassportIssueDate
	case contains("date_of_birth", "date of birth", "birth", "dob"):
		return PurposeDateOfBirth
	case contains("confirm_passport", "confirm passport", "passport_confirm"):
		return PurposeConfirmPassportNumber
	case contains("passport_number", "passport number", "passport_no", "passport no"):
		return PurposePassportNumber
	case contains("first_name", "first name", "firstname", "given name"):
		return PurposeFirstName
	case contains("last_name", "last name", "lastname", "surname", "family name"):
		return PurposeLastName
	case contains("nationality"):
		return PurposeNationality
	case contains("gender", "sex"):
		return PurposeGender
	case contains("marital"):
		return PurposeMaritalStatus
	case contains("visa_type", "visa type", "visa"):
		return PurposeVisaType
	case contains("email") || inputType == "email":
		return PurposeEmail
	case contains("phone", "mobile", "contact number") || inputType == "tel":
		return PurposePhone
	case contains("national_id", "national id", "nationalid"):
		return PurposeNationalID
	case contains("position", "occupation", "profession"):
		return PurposePosition
	case contains("appointment_location", "appointment location", "medical center", "appointment_city"):
		return PurposeAppointmentLocation
	case contains("traveling_to", "traveling to", "travelling_to", "travelling to", "destination"):
		return PurposeCountryTravelingTo
	case contains("city"):
		return PurposeCity
	case contains("country"):
		return PurposeCountry
	default:
		return PurposeUnknown
	}
}
