package services

import (
	"strings"
	"testing"
	"time"

	"github.com/SundayYogurt/clearance_service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportProfile(t *testing.T) {
	p := domain.NewStudentProfile("id-1", "Ada Obi", "ada@example.com", "080", time.Unix(0, 0).UTC())
	p.OLevelSitting1.Subjects[0] = domain.OLevelSubject{Subject: "English", Grade: "A1"}

	out, err := ExportProfile(p)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "id: id-1", lines[0])
	assert.Contains(t, lines, "surname: Obi")
	assert.Contains(t, lines, "olevel_sitting_1.subjects[0].subject: English")
	assert.Contains(t, lines, "olevel_sitting_1.subjects[0].grade: A1")
	assert.Contains(t, lines, "jamb_score_details[1].score: 0")
}
