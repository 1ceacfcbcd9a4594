package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document/repository"
	"github.com/meadowlark/meadowlark/backend/go-services/internal/document/service"
	"github.com/meadowlark/meadowlark/backend/go-services/pkg/middleware"
	"github.com/stretchr/testify/require"
)

const schools = "/api/ed-fi/v3.3b/School"

// headerAuth trusts X-Client and X-Role so tests can act as any caller.
func headerAuth(c *gin.Context) {
	strategy := document.StrategyOwnershipBased
	if c.GetHeader("X-Role") == "host" {
		strategy = document.StrategyFullAccess
	}
	c.Set(middleware.SecurityKey, document.Security{ClientID: c.GetHeader("X-Client"), AuthorizationStrategy: strategy})
	c.Next()
}

func newRouter(opts Options) (*gin.Engine, *repository.MemoryRepo) {
	gin.SetMode(gin.TestMode)
	repo := repository.NewMemoryRepo()
	g := gin.New()
	New(service.New(repo), repo, nil, opts).Register(g.Group("/api"), headerAuth)
	return g, repo
}

func call(g *gin.Engine, method, path, client, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client", client)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func schoolBody(id int, refs ...int) string {
	env := Envelope{
		DocumentIdentity: document.DocumentIdentity{"schoolId": id},
		EdfiDoc:          map[string]any{"schoolId": id, "nameOfInstitution": "Grand Bend"},
	}
	for _, r := range refs {
		env.DocumentReferences = append(env.DocumentReferences, document.DocumentReference{ResourceName: "School", DocumentIdentity: document.DocumentIdentity{"schoolId": r}})
	}
	b, _ := json.Marshal(env)
	return string(b)
}

func storedSchools(t *testing.T, repo *repository.MemoryRepo, id int) []*document.Document {
	ri := document.ResourceInfo{ProjectName: "ed-fi", ResourceName: "School"}
	docs, err := repo.QueryByAlias(context.Background(), document.MeadowlarkIDForDocumentIdentity(ri, document.DocumentIdentity{"schoolId": id}), 0)
	require.NoError(t, err)
	return docs
}

func location(t *testing.T, w *httptest.ResponseRecorder) string {
	loc := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, schools+"/"), loc)
	return loc
}

func TestUpsertInsertThenUpdate(t *testing.T) {
	g, repo := newRouter(Options{ReferenceValidation: true})

	w := call(g, http.MethodPost, schools, "client-a", schoolBody(1))
	require.Equal(t, http.StatusCreated, w.Code)
	loc := location(t, w)
	require.NotEmpty(t, w.Header().Get(TraceHeader))

	w = call(g, http.MethodPost, schools, "client-a", schoolBody(1))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, loc, w.Header().Get("Location"))
	require.Len(t, storedSchools(t, repo, 1), 1)

	w = call(g, http.MethodGet, loc, "client-a", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "Grand Bend", body["nameOfInstitution"])
	require.Equal(t, loc[strings.LastIndex(loc, "/")+1:], body["id"])
}

func TestUpsertReferenceFailure(t *testing.T) {
	g, _ := newRouter(Options{ReferenceValidation: true})

	w := call(g, http.MethodPost, schools, "client-a", schoolBody(2, 99), TraceHeader, "trace-42")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "trace-42", w.Header().Get(TraceHeader))

	var res document.UpsertResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, document.InsertFailureReference, res.Response)
	require.Len(t, res.Failures, 1)
	require.Equal(t, "ed-fi", res.Failures[0].ProjectName)
}

func TestReferenceValidationBypass(t *testing.T) {
	g, _ := newRouter(Options{ReferenceValidation: true, AllowBypass: true})

	w := call(g, http.MethodPost, schools, "vendor", schoolBody(2, 99), ReferenceValidationHeader, "false")
	require.Equal(t, http.StatusConflict, w.Code)

	w = call(g, http.MethodPost, schools, "host", schoolBody(2, 99), ReferenceValidationHeader, "false", "X-Role", "host")
	require.Equal(t, http.StatusCreated, w.Code)

	strict, _ := newRouter(Options{ReferenceValidation: true})
	w = call(strict, http.MethodPost, schools, "host", schoolBody(2, 99), ReferenceValidationHeader, "false", "X-Role", "host")
	require.Equal(t, http.StatusConflict, w.Code)

	off, _ := newRouter(Options{})
	w = call(off, http.MethodPost, schools, "vendor", schoolBody(2, 99))
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestOwnershipEnforced(t *testing.T) {
	g, _ := newRouter(Options{ReferenceValidation: true})
	loc := location(t, call(g, http.MethodPost, schools, "owner", schoolBody(1)))

	require.Equal(t, http.StatusForbidden, call(g, http.MethodPost, schools, "stranger", schoolBody(1)).Code)
	require.Equal(t, http.StatusForbidden, call(g, http.MethodGet, loc, "stranger", "").Code)
	require.Equal(t, http.StatusForbidden, call(g, http.MethodPut, loc, "stranger", schoolBody(1)).Code)
	require.Equal(t, http.StatusForbidden, call(g, http.MethodDelete, loc, "stranger", "").Code)

	require.Equal(t, http.StatusOK, call(g, http.MethodGet, loc, "host", "", "X-Role", "host").Code)
}

func TestDescriptorReadsComeFromCatalog(t *testing.T) {
	const descriptors = "/api/ed-fi/v3.3b/GradeLevelDescriptor"
	body := `{"documentIdentity": {"descriptor": "uri://ed-fi.org/GradeLevelDescriptor#First"}}`

	t.Run("route name alone is not enough", func(t *testing.T) {
		g, _ := newRouter(Options{ReferenceValidation: true})
		w := call(g, http.MethodPost, descriptors, "owner", body)
		require.Equal(t, http.StatusCreated, w.Code)
		require.Equal(t, http.StatusForbidden, call(g, http.MethodGet, w.Header().Get("Location"), "stranger", "").Code)
	})

	t.Run("catalog descriptor is readable by anyone", func(t *testing.T) {
		g, _ := newRouter(Options{ReferenceValidation: true, Catalog: NewDescriptorSet("gradeleveldescriptor")})
		w := call(g, http.MethodPost, descriptors, "owner", body)
		require.Equal(t, http.StatusCreated, w.Code)
		loc := w.Header().Get("Location")
		require.Equal(t, http.StatusOK, call(g, http.MethodGet, loc, "stranger", "").Code)
		require.Equal(t, http.StatusForbidden, call(g, http.MethodDelete, loc, "stranger", "").Code)
	})
}

func TestDescriptorSet(t *testing.T) {
	set := NewDescriptorSet("TermDescriptor", " ", "gradeLevelDescriptor")
	require.Len(t, set, 2)
	require.True(t, set.IsDescriptor("ed-fi", "termdescriptor"))
	require.True(t, set.IsDescriptor("tpdm", "GradeLevelDescriptor"))
	require.False(t, set.IsDescriptor("ed-fi", "School"))
	require.False(t, DescriptorSet{}.IsDescriptor("ed-fi", "TermDescriptor"))
}

func TestUpdateByID(t *testing.T) {
	g, _ := newRouter(Options{ReferenceValidation: true})
	loc := location(t, call(g, http.MethodPost, schools, "client-a", schoolBody(1)))

	require.Equal(t, http.StatusNoContent, call(g, http.MethodPut, loc, "client-a", schoolBody(1)).Code)
	require.Equal(t, http.StatusBadRequest, call(g, http.MethodPut, loc, "client-a", schoolBody(2)).Code)
	require.Equal(t, http.StatusConflict, call(g, http.MethodPut, loc, "client-a", schoolBody(1, 404)).Code)
	require.Equal(t, http.StatusNotFound, call(g, http.MethodPut, schools+"/missing", "client-a", schoolBody(1)).Code)
}

func TestDeleteByID(t *testing.T) {
	g, _ := newRouter(Options{ReferenceValidation: true})
	target := location(t, call(g, http.MethodPost, schools, "client-a", schoolBody(1)))
	referrer := location(t, call(g, http.MethodPost, schools, "client-a", schoolBody(2, 1)))

	w := call(g, http.MethodDelete, target, "client-a", "")
	require.Equal(t, http.StatusConflict, w.Code)
	var res document.DeleteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.BlockingDocuments, 1)

	require.Equal(t, http.StatusNoContent, call(g, http.MethodDelete, referrer, "client-a", "").Code)
	require.Equal(t, http.StatusNoContent, call(g, http.MethodDelete, target, "client-a", "").Code)
	require.Equal(t, http.StatusNotFound, call(g, http.MethodDelete, target, "client-a", "").Code)
	require.Equal(t, http.StatusNotFound, call(g, http.MethodGet, target, "client-a", "").Code)
}

func TestBadBody(t *testing.T) {
	g, _ := newRouter(Options{ReferenceValidation: true})
	require.Equal(t, http.StatusBadRequest, call(g, http.MethodPost, schools, "client-a", "{not json").Code)
	require.Equal(t, http.StatusBadRequest, call(g, http.MethodPost, schools, "client-a", `{"edfiDoc":{}}`).Code)
}

func TestOversizedBody(t *testing.T) {
	g, repo := newRouter(Options{ReferenceValidation: true})
	pad := strings.Repeat("x", maxBodyBytes)
	body := `{"documentIdentity": {"schoolId": 1}, "edfiDoc": {"pad": "` + pad + `"}}`

	w := call(g, http.MethodPost, schools, "client-a", body)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	require.Empty(t, storedSchools(t, repo, 1))
}

func TestEnvelopeExtractor(t *testing.T) {
	ri := document.ResourceInfo{ProjectName: "ed-fi", ResourceName: "Section"}
	info, edfiDoc, err := EnvelopeExtractor{}.Extract(ri, []byte(`{
		"documentIdentity": {"sectionIdentifier": "S1"},
		"descriptorReferences": [{"resourceName": "TermDescriptor", "documentIdentity": {"descriptor": "uri://x#Fall"}}],
		"superclassInfo": {"resourceName": "EducationOrganization", "documentIdentity": {"educationOrganizationId": 1}}
	}`))
	require.NoError(t, err)
	require.Empty(t, edfiDoc)
	require.NotNil(t, edfiDoc)
	require.True(t, info.DescriptorReferences[0].IsDescriptor)
	require.Equal(t, "ed-fi", info.DescriptorReferences[0].ProjectName)
	require.Equal(t, "ed-fi", info.SuperclassInfo.ProjectName)
}
