package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table. The ledger only needs identity and
// ownership; the clinical record lives in the main EHR service.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	MRN         string     `db:"mrn" json:"mrn"`
	Active      bool       `db:"active" json:"active"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	BirthDate   *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	PhoneMobile *string    `db:"phone_mobile" json:"phone_mobile,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
