package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvsim/pkg/core/dsm"
	"cvsim/pkg/core/process"
	"cvsim/pkg/core/sim"
	"cvsim/pkg/core/store"
)

type fakeSettings struct {
	stored map[int]sim.Settings
	saved  *sim.Settings
	getErr error
}

func (f *fakeSettings) Get(_ context.Context, projectID int) (sim.Settings, error) {
	if f.getErr != nil {
		return sim.Settings{}, f.getErr
	}
	set, ok := f.stored[projectID]
	if !ok {
		return sim.Settings{}, store.ErrSettingsNotFound
	}
	return set, nil
}

func (f *fakeSettings) Save(_ context.Context, _ int, set sim.Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	f.saved = &set
	return nil
}

type fakeRunner struct {
	gotSettings   sim.Settings
	gotVcsIDs     []int
	gotDesignIDs  []int
	gotMatrix     *dsm.Matrix
	gotNormalized bool
	results       []sim.PairResult
	err           error
}

func (f *fakeRunner) Run(_ context.Context, set sim.Settings, vcsIDs, designIDs []int, ext *dsm.Matrix, normalized bool) ([]sim.PairResult, error) {
	f.gotSettings = set
	f.gotVcsIDs = vcsIDs
	f.gotDesignIDs = designIDs
	f.gotMatrix = ext
	f.gotNormalized = normalized
	return f.results, f.err
}

func validSettings() sim.Settings {
	start := 0.0
	return sim.Settings{
		TimeUnit:      process.UnitYear,
		FlowStartTime: &start,
		FlowTime:      10,
		Interarrival:  1,
		EndTime:       100,
		NonTechAdd:    process.PolicyNoCost,
		Runs:          50,
	}
}

func newTestRouter(settings *fakeSettings, runner *fakeRunner) *mux.Router {
	r := mux.NewRouter()
	NewHandler(settings, runner, zerolog.Nop()).Register(r)
	return r
}

func TestHandleGetSettings(t *testing.T) {
	settings := &fakeSettings{stored: map[int]sim.Settings{7: validSettings()}}
	router := newTestRouter(settings, &fakeRunner{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cvs/project/7/simulation/settings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got sim.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, process.UnitYear, got.TimeUnit)
	assert.Equal(t, 50, got.Runs)
}

func TestHandleGetSettings_NotFound(t *testing.T) {
	router := newTestRouter(&fakeSettings{}, &fakeRunner{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cvs/project/7/simulation/settings", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleEditSettings(t *testing.T) {
	settings := &fakeSettings{}
	router := newTestRouter(settings, &fakeRunner{})

	body, _ := json.Marshal(validSettings())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/cvs/project/7/simulation/settings", bytes.NewReader(body)))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, settings.saved)
	assert.Equal(t, 100.0, settings.saved.EndTime)
}

func TestHandleEditSettings_InvalidFlowAnchor(t *testing.T) {
	router := newTestRouter(&fakeSettings{}, &fakeRunner{})

	set := validSettings()
	set.FlowProcess = "Assembly" // both anchors
	body, _ := json.Marshal(set)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/cvs/project/7/simulation/settings", bytes.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func runBody(t *testing.T, req RunRequest) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestHandleRun(t *testing.T) {
	settings := &fakeSettings{stored: map[int]sim.Settings{7: validSettings()}}
	runner := &fakeRunner{results: []sim.PairResult{{VcsID: 1, DesignID: 2}}}
	router := newTestRouter(settings, runner)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cvs/project/7/simulation/run",
		runBody(t, RunRequest{VcsIDs: []int{1}, DesignIDs: []int{2}, NormalizedNPV: true})))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{1}, runner.gotVcsIDs)
	assert.Equal(t, []int{2}, runner.gotDesignIDs)
	assert.Nil(t, runner.gotMatrix)
	assert.True(t, runner.gotNormalized)
	assert.False(t, runner.gotSettings.MonteCarlo)

	var results []sim.PairResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].VcsID)
}

func TestHandleRunMonteCarlo_OverridesRuns(t *testing.T) {
	settings := &fakeSettings{stored: map[int]sim.Settings{7: validSettings()}}
	runner := &fakeRunner{}
	router := newTestRouter(settings, runner)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cvs/project/7/simulation/run-monte-carlo",
		runBody(t, RunRequest{VcsIDs: []int{1}, DesignIDs: []int{2}, Runs: 300})))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, runner.gotSettings.MonteCarlo)
	assert.Equal(t, 300, runner.gotSettings.Runs)
}

func TestHandleRunCSV(t *testing.T) {
	settings := &fakeSettings{stored: map[int]sim.Settings{7: validSettings()}}
	runner := &fakeRunner{}
	router := newTestRouter(settings, runner)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("dsm", "dsm.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("name,Start,A,End\nStart,X,1,0\nA,0,X,1\nEnd,0,0,X\n"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("request", `{"vcs_ids":[1],"design_ids":[2]}`))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/cvs/project/7/simulation/run-csv", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, runner.gotMatrix)
	_, ok := runner.gotMatrix.NodeID("A")
	assert.True(t, ok)
	assert.Equal(t, []int{1}, runner.gotVcsIDs)
}

func TestHandleRunCSV_MissingFileFallsBack(t *testing.T) {
	settings := &fakeSettings{stored: map[int]sim.Settings{7: validSettings()}}
	runner := &fakeRunner{}
	router := newTestRouter(settings, runner)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("request", `{"vcs_ids":[1],"design_ids":[2]}`))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/cvs/project/7/simulation/run-csv", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// a missing DSM upload is recovered with the default sequential chain
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, runner.gotMatrix)
}

func TestHandleRunCSV_InvalidTable(t *testing.T) {
	settings := &fakeSettings{stored: map[int]sim.Settings{7: validSettings()}}
	router := newTestRouter(settings, &fakeRunner{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("dsm", "dsm.csv")
	require.NoError(t, err)
	// row "Start" carries more weights than there are nodes
	_, err = part.Write([]byte("name,Start,A,End\nStart,X,1,0,9,9\nA,0,X,1\nEnd,0,0,X\n"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("request", `{"vcs_ids":[1],"design_ids":[2]}`))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/cvs/project/7/simulation/run-csv", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"rate order", &process.RateOrderError{RowID: 4, Name: "Support"}, http.StatusBadRequest},
		{"negative time", &process.NegativeTimeError{RowID: 4, Time: -1}, http.StatusBadRequest},
		{"process not found", process.ErrProcessNotFound, http.StatusBadRequest},
		{"no designs", sim.ErrNoDesigns, http.StatusBadRequest},
		{"eval failure", &process.EvalError{RowID: 4, Err: errors.New("division by zero")}, http.StatusInternalServerError},
		{"run failure", &sim.RunFailedError{Err: errors.New("panic")}, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			settings := &fakeSettings{stored: map[int]sim.Settings{7: validSettings()}}
			router := newTestRouter(settings, &fakeRunner{err: tc.err})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cvs/project/7/simulation/run",
				runBody(t, RunRequest{VcsIDs: []int{1}, DesignIDs: []int{2}})))

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestHandleRun_MalformedBody(t *testing.T) {
	settings := &fakeSettings{stored: map[int]sim.Settings{7: validSettings()}}
	router := newTestRouter(settings, &fakeRunner{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cvs/project/7/simulation/run",
		strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
