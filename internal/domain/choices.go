package domain

type DocumentSlot string

const (
	DocOLevel         DocumentSlot = "doc_olevel_url"
	DocAgeDeclaration DocumentSlot = "doc_age_declaration_url"
	DocLGA            DocumentSlot = "doc_lga_url"
)

var DocumentSlots = []DocumentSlot{DocOLevel, DocAgeDeclaration, DocLGA}

func ParseDocumentSlot(s string) (DocumentSlot, bool) {
	for _, slot := range DocumentSlots {
		if string(slot) == s {
			return slot, true
		}
	}
	return "", false
}

var (
	ExamNames       = []string{"WAEC", "NECO", "NABTEB", "GCE"}
	Grades          = []string{"A1", "B2", "B3", "C4", "C5", "C6", "D7", "E8", "F9"}
	Genders         = []string{"Male", "Female"}
	Religions       = []string{"Christianity", "Islam", "Other"}
	MaritalStatuses = []string{"Single", "Married"}
)

// Section titles in form order.
var Sections = []string{
	"Personal Details",
	"Next of Kin",
	"Biodata",
	"JAMB Details",
	"Schools",
	"O'Level Results",
	"Documents",
}

const (
	SectionPersonal = iota
	SectionNextOfKin
	SectionBiodata
	SectionJamb
	SectionSchools
	SectionOLevel
	SectionDocuments
)

const LastSection = SectionDocuments
