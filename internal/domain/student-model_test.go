package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStudentProfile_Defaults(t *testing.T) {
	p := NewStudentProfile("id", "Chidi Okeke Junior", "c@example.com", "080", time.Unix(10, 0))

	assert.Equal(t, "Chidi", p.FirstName)
	assert.Equal(t, "Okeke", p.Surname)
	assert.Equal(t, PaymentPending, p.PaymentStatus)
	assert.Equal(t, "Single", p.MaritalStatus)
	require.Len(t, p.JambScoreDetails, 4)
	assert.Equal(t, JambScore{Subject: "Use of English"}, p.JambScoreDetails[0])
	assert.Equal(t, "WAEC", p.OLevelSitting1.ExamName)
	assert.Len(t, p.OLevelSitting1.Subjects, 9)
	require.NotNil(t, p.OLevelSitting2)
	assert.Equal(t, "NECO", p.OLevelSitting2.ExamName)
	assert.False(t, p.HasSecondSitting)
	assert.Len(t, p.MissingDocuments(), 3)
}

func TestNewStudentProfile_SingleName(t *testing.T) {
	p := NewStudentProfile("id", "Madonna", "m@example.com", "080", time.Now())
	assert.Equal(t, "Madonna", p.FirstName)
	assert.Empty(t, p.Surname)
}

func TestMerge_NeverDowngradesPayment(t *testing.T) {
	created := time.Unix(100, 0)
	existing := NewStudentProfile("keep-me", "A B", "a@example.com", "080", created)
	existing.MarkPaid("ref-1", time.Unix(200, 0))

	incoming := NewStudentProfile("other", "A B", "a@example.com", "080", time.Unix(300, 0))
	incoming.NokName = "Kin"

	merged := existing.Merge(incoming)
	assert.Equal(t, "keep-me", merged.ID)
	assert.Equal(t, created, merged.CreatedAt)
	assert.Equal(t, PaymentPaid, merged.PaymentStatus)
	assert.Equal(t, "ref-1", merged.PaymentReference)
	assert.Equal(t, "Kin", merged.NokName)
}

func TestMerge_KeepsSubmissionTime(t *testing.T) {
	at := time.Unix(500, 0)
	existing := NewStudentProfile("id", "A B", "a@example.com", "080", time.Unix(0, 0))
	existing.SubmittedAt = &at

	merged := existing.Merge(NewStudentProfile("id", "A B", "a@example.com", "080", time.Unix(0, 0)))
	require.NotNil(t, merged.SubmittedAt)
	assert.Equal(t, at, *merged.SubmittedAt)
}

func TestClone_IsDeep(t *testing.T) {
	p := NewStudentProfile("id", "A B", "a@example.com", "080", time.Now())
	c := p.Clone()
	c.JambScoreDetails[1].Subject = "Physics"
	c.OLevelSitting1.Subjects[0].Grade = "A1"
	c.OLevelSitting2.ExamName = "GCE"

	assert.Empty(t, p.JambScoreDetails[1].Subject)
	assert.Empty(t, p.OLevelSitting1.Subjects[0].Grade)
	assert.Equal(t, "NECO", p.OLevelSitting2.ExamName)
}

func TestNormalize_RestoresShape(t *testing.T) {
	var p StudentProfile
	require.NoError(t, json.Unmarshal([]byte(`{"email":"a@example.com","jamb_score_details":[{"subject":"Maths","score":50}]}`), &p))

	p.Normalize()
	require.Len(t, p.JambScoreDetails, 4)
	assert.Equal(t, "Use of English", p.JambScoreDetails[0].Subject)
	assert.Equal(t, 50, p.JambScoreDetails[0].Score)
	assert.Len(t, p.OLevelSitting1.Subjects, 9)
	require.NotNil(t, p.OLevelSitting2)
	assert.Equal(t, PaymentPending, p.PaymentStatus)
}

func TestDocumentSlots(t *testing.T) {
	var p StudentProfile
	assert.True(t, p.SetDocumentURL(DocLGA, "u"))
	assert.False(t, p.SetDocumentURL(DocumentSlot("x"), "u"))
	assert.Equal(t, []DocumentSlot{DocOLevel, DocAgeDeclaration}, p.MissingDocuments())

	slot, ok := ParseDocumentSlot("doc_age_declaration_url")
	assert.True(t, ok)
	assert.Equal(t, DocAgeDeclaration, slot)
}

func TestSettings(t *testing.T) {
	s := SystemSettings{ClearanceFee: 99000, GatewayPublicKey: "pk_live_DEMO_KEY_REPLACE_ME"}
	assert.Equal(t, int64(9900000), s.AmountMinorUnits())
	assert.False(t, s.HasUsablePublicKey())

	s.GatewayPublicKey = "SB-Mid-client-abc"
	assert.True(t, s.HasUsablePublicKey())
}
