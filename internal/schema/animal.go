// Package schema holds the fixed animal-record schema the pipeline checks
// extracted data against before any tenant-specific mapping is consulted.
package schema

import "strings"

// Animal category values recognized by the checklist.
const (
	CategoryNewborn       = "Newborn Animal"
	CategoryMature        = "Mature Animal"
	CategoryPurchaseLease = "Purchase/Lease"
)

// requiredWhen describes when a field must be present.
type requiredWhen int

const (
	optional requiredWhen = iota
	always
	newbornOnly     // required only for newborn animals
	withBirthWeight // required only when birth_weight was extracted
)

// fieldRule is one entry in the animal checklist. Order matters: missing
// fields are reported in declaration order.
type fieldRule struct {
	Name        string
	Required    requiredWhen
	Description string
}

// animalFields is the fixed checklist for animal records. Tenant mapping
// rules add per-tenant constraints on top; this list is the floor every
// extraction must clear.
var animalFields = []fieldRule{
	{"category", always, "Animal category (Newborn Animal, Mature Animal, or Purchase/Lease)"},
	{"species", always, "Animal species (Beef Cattle, Sheep, Goat, or Bison)"},
	{"birth_date", always, "Animal's birth date (use best guess if unknown)"},
	{"sex", always, "Animal's sex (e.g. Bull, Cow, Heifer, Ewe)"},
	{"breed_composition", always, "Breed composition (must sum to 100%)"},
	{"location", always, "Current location of the animal"},
	{"birth_season", newbornOnly, "Birth season for newborn animals (e.g. 2024 or January 2024)"},
	{"birth_weight_uom", withBirthWeight, "Unit of measure for birth weight (kg or lbs)"},
	{"ear_tag", optional, "Animal's ear tag (must be unique)"},
	{"rfid", optional, "Animal's RFID (15-20 digit number)"},
	{"herd_letter", optional, "Herd letter from account"},
	{"registration_name", optional, "Registration name"},
	{"registration_id", optional, "Registration ID"},
	{"born_as", optional, "Birth type (Single, Twin, Triplet, or Embryo-Transfer)"},
	{"raised_as", optional, "Rearing type (e.g. Single, Foster, Bottle-Fed)"},
	{"birthing_ease", optional, "Birth difficulty classification"},
	{"birth_weight", optional, "Weight at birth"},
	{"dam_id", optional, "ID of the animal's dam (mother)"},
	{"sire_id", optional, "ID of the animal's sire (father)"},
	{"colour", optional, "Animal's colour"},
}

// MissingRequiredFields returns the names of checklist fields that must be
// present for the given category but are absent or empty in the extracted
// data, in checklist order.
func MissingRequiredFields(extracted map[string]any, category string) []string {
	var missing []string
	for _, rule := range animalFields {
		switch rule.Required {
		case always:
		case newbornOnly:
			if category != CategoryNewborn {
				continue
			}
		case withBirthWeight:
			if _, ok := extracted["birth_weight"]; !ok {
				continue
			}
		default:
			continue
		}

		if isMissing(extracted[rule.Name]) {
			missing = append(missing, rule.Name)
		}
	}
	return missing
}

// FormatMissingFieldsPrompt builds the user-facing message listing what a
// farmer still needs to record, one description per line.
func FormatMissingFieldsPrompt(missing []string) string {
	if len(missing) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("The following required information is missing from your recording:\n\n")
	for _, name := range missing {
		b.WriteString("- ")
		b.WriteString(describe(name))
		b.WriteString("\n")
	}
	b.WriteString("\nPlease provide these details.")
	return b.String()
}

func describe(name string) string {
	for _, rule := range animalFields {
		if rule.Name == name {
			return rule.Description
		}
	}
	return name
}

func isMissing(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	return false
}
