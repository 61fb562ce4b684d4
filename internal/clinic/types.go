// Package clinic holds the clinic's entities and a typed repository over the
// collection store.
//
// Appointments and clinical records point at patients through PatientID. That
// reference is weak: nothing checks it on write and deleting a patient never
// cascades. Readers resolve it with a lookup and fall back to RemovedPatient
// when the patient is gone.
package clinic

// Collection names.
const (
	Patients     = "patients"
	Appointments = "appointments"
	Records      = "records"
	Settings     = "settings"
)

// StatusConfirmed is the default appointment status. Any other free text is allowed.
const StatusConfirmed = "Confirmed"

// RemovedPatient labels a reference to a patient that no longer exists.
const RemovedPatient = "(removed patient)"

// Patient is a registry entry. Name is the only required field.
type Patient struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	DOB       string `json:"dob"`
	Doc       string `json:"doc"`
	CreatedAt string `json:"createdAt"`
}

// Appointment is a calendar entry. Date is YYYY-MM-DD and Time is HH:MM.
type Appointment struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	PatientID string `json:"patientId"`
	Status    string `json:"status"`
	Note      string `json:"note"`
	CreatedAt string `json:"createdAt"`
}

// ClinicalRecord is a SOAP note.
type ClinicalRecord struct {
	ID         string `json:"id"`
	PatientID  string `json:"patientId"`
	Date       string `json:"date"`
	Subjective string `json:"S"`
	Objective  string `json:"O"`
	Assessment string `json:"A"`
	Plan       string `json:"P"`
	CreatedAt  string `json:"createdAt"`
}

// Setting is one key/value pair of practice metadata.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Well-known setting keys used by prescriptions and printed documents.
const (
	SettingProfessionalName = "profName"
	SettingProfessionalInfo = "profInfo"
)
