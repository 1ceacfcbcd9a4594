package document

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var school = ResourceInfo{ProjectName: "Ed-Fi", ResourceName: "School", ResourceVersion: "3.3.1-b"}

func TestMeadowlarkIDIsDeterministic(t *testing.T) {
	a := MeadowlarkIDForDocumentIdentity(school, DocumentIdentity{"schoolId": 1, "name": "x"})
	b := MeadowlarkIDForDocumentIdentity(school, DocumentIdentity{"name": "x", "schoolId": 1})
	require.Equal(t, a, b)
	require.NotEmpty(t, a)
}

func TestMeadowlarkIDSeparatesResourceTypesAndValues(t *testing.T) {
	id := DocumentIdentity{"id": 1}
	other := ResourceInfo{ProjectName: "Ed-Fi", ResourceName: "LocalEducationAgency"}

	assert.NotEqual(t,
		MeadowlarkIDForDocumentIdentity(school, id),
		MeadowlarkIDForDocumentIdentity(other, id))
	assert.NotEqual(t,
		MeadowlarkIDForDocumentIdentity(school, DocumentIdentity{"id": 1}),
		MeadowlarkIDForDocumentIdentity(school, DocumentIdentity{"id": "1"}))
	assert.NotEqual(t,
		MeadowlarkIDForDocumentIdentity(school, DocumentIdentity{"id": 1}),
		MeadowlarkIDForDocumentIdentity(school, DocumentIdentity{"id": 2}))
}

func TestJSONNumbersMatchGoIntegers(t *testing.T) {
	require.Equal(t,
		MeadowlarkIDForDocumentIdentity(school, DocumentIdentity{"schoolId": 123}),
		MeadowlarkIDForDocumentIdentity(school, DocumentIdentity{"schoolId": float64(123)}))
}

func TestSuperclassAliasSharedAcrossSubclasses(t *testing.T) {
	sc := SuperclassInfo{ProjectName: "Ed-Fi", ResourceName: "EducationOrganization",
		DocumentIdentity: DocumentIdentity{"educationOrganizationId": 1}}

	schoolAliases := AliasIDsFor(MeadowlarkIDForDocumentIdentity(school, DocumentIdentity{"schoolId": 1}), &sc)
	lea := ResourceInfo{ProjectName: "Ed-Fi", ResourceName: "LocalEducationAgency"}
	leaAliases := AliasIDsFor(MeadowlarkIDForDocumentIdentity(lea, DocumentIdentity{"localEducationAgencyId": 1}), &sc)

	require.Len(t, schoolAliases, 2)
	require.Len(t, leaAliases, 2)
	assert.NotEqual(t, schoolAliases[0], leaAliases[0])
	assert.Equal(t, schoolAliases[1], leaAliases[1])
	assert.Equal(t, SuperclassAliasID(sc), schoolAliases[1])
}

func TestReferenceIDMatchesTargetDocumentID(t *testing.T) {
	ref := DocumentReference{ProjectName: "Ed-Fi", ResourceName: "School", DocumentIdentity: DocumentIdentity{"schoolId": 7}}
	require.Equal(t,
		MeadowlarkIDForDocumentIdentity(school, DocumentIdentity{"schoolId": 7}),
		MeadowlarkIDForReference(ref))
}

func TestOutboundRefsDeduplicates(t *testing.T) {
	ref := DocumentReference{ProjectName: "Ed-Fi", ResourceName: "School", DocumentIdentity: DocumentIdentity{"schoolId": 7}}
	desc := DocumentReference{ProjectName: "Ed-Fi", ResourceName: "GradeLevelDescriptor",
		DocumentIdentity: DocumentIdentity{"descriptor": "uri://ed-fi.org/GradeLevelDescriptor#First"}, IsDescriptor: true}

	refs := OutboundRefsFor(DocumentInfo{
		DocumentReferences:   []DocumentReference{ref, ref},
		DescriptorReferences: []DocumentReference{desc},
	})
	require.Equal(t, []string{MeadowlarkIDForReference(ref), MeadowlarkIDForReference(desc)}, refs)
}

func TestGenerateDocumentUUIDIsUnique(t *testing.T) {
	require.NotEqual(t, GenerateDocumentUUID(), GenerateDocumentUUID())
}

func TestDecodeRejectsMalformedRecords(t *testing.T) {
	_, err := Decode("k1", []byte("{not json"))
	var de *DeserializationError
	require.True(t, errors.As(err, &de))
	require.Equal(t, "k1", de.Key)

	_, err = Decode("k2", []byte(`{"meadowlarkId":"k2","resourceName":"School"}`))
	require.True(t, errors.As(err, &de))
	require.Contains(t, de.Error(), "documentUuid")

	d := &Document{MeadowlarkID: "k3", DocumentUUID: "u3", ProjectName: "Ed-Fi", ResourceName: "School",
		OutboundRefs: []string{"r1"}, AliasIDs: []string{"k3"}}
	raw, err := Encode(d)
	require.NoError(t, err)
	got, err := Decode("k3", raw)
	require.NoError(t, err)
	require.Equal(t, d.OutboundRefs, got.OutboundRefs)
	require.Equal(t, "u3", got.DocumentUUID)
}
