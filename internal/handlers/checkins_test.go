package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugboizz/hanet-attendance-api/internal/models"
	"github.com/fugboizz/hanet-attendance-api/internal/services"
	"github.com/fugboizz/hanet-attendance-api/pkg/hanet"
)

// fakeHanet scripts the upstream API for end-to-end handler tests.
type fakeHanet struct {
	tokenStatus int
	places      string
	devices     string
	// checkins receives the posted form and page number and returns the
	// response body.
	checkins func(form url.Values, page int) string
}

func (f *fakeHanet) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if f.tokenStatus != 0 && f.tokenStatus != http.StatusOK {
			w.WriteHeader(f.tokenStatus)
			return
		}
		fmt.Fprint(w, `{"access_token":"e2e-token","expires_in":3600}`)
	})
	mux.HandleFunc("/place/getPlaces", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, f.places)
	})
	mux.HandleFunc("/device/getListDeviceByPlace", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, f.devices)
	})
	mux.HandleFunc("/person/getCheckinByPlaceIdInTimestamp", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		page, err := strconv.Atoi(r.PostFormValue("page"))
		require.NoError(t, err)
		fmt.Fprint(w, f.checkins(r.PostForm, page))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T, fake *fakeHanet, lookbackDays int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := fake.start(t)
	tokens := hanet.NewTokenCache(srv.URL+"/token", "id", "secret", "refresh", zerolog.Nop())
	client := hanet.NewClient(hanet.Config{BaseURL: srv.URL, EmptyPageLimit: 3}, tokens, zerolog.Nop(), nil)
	service := services.NewCheckinService(
		"test",
		client,
		services.WindowPlanner{LookbackDays: lookbackDays},
		services.NewAggregator(time.UTC),
		nil,
		nil,
		zerolog.Nop(),
	)

	router := gin.New()
	RegisterTenantHandlers(router, "", service, zerolog.Nop(), 30*time.Second)
	return router
}

func doGet(router *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	router.ServeHTTP(w, req)
	return w
}

func eventJSON(personID string, date string, ts int64) string {
	return fmt.Sprintf(`{"personID":%q,"personName":"Person %s","date":%q,"checkinTime":%d}`, personID, personID, date, ts)
}

func TestCheckinsSinglePersonTwoEvents(t *testing.T) {
	from := int64(1700000000000)
	to := from + 86400000

	morning := time.Date(2023, 11, 15, 9, 0, 0, 0, time.UTC).UnixMilli()
	evening := time.Date(2023, 11, 15, 18, 0, 0, 0, time.UTC).UnixMilli()

	fake := &fakeHanet{
		checkins: func(form url.Values, page int) string {
			if page == 1 {
				return fmt.Sprintf(`{"returnCode":1,"data":[%s,%s]}`,
					eventJSON("P1", "2023-11-15", morning),
					eventJSON("P1", "2023-11-15", evening))
			}
			return `{"returnCode":1,"data":[]}`
		},
	}

	router := newTestRouter(t, fake, 0)
	w := doGet(router, fmt.Sprintf("/checkins?placeId=5&dateFrom=%d&dateTo=%d", from, to))
	require.Equal(t, http.StatusOK, w.Code)

	var result []models.PersonDaySummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result, 1)

	assert.Equal(t, "P1", result[0].PersonID)
	assert.Equal(t, morning, result[0].CheckinTime)
	assert.Equal(t, evening, result[0].CheckoutTime)
	assert.Equal(t, "09:00:00", result[0].FormattedCheckinTime)
	assert.Equal(t, "18:00:00", result[0].FormattedCheckoutTime)
}

func TestCheckinsMissingDateToIsBadRequest(t *testing.T) {
	fake := &fakeHanet{
		checkins: func(form url.Values, page int) string { return `{"returnCode":1,"data":[]}` },
	}
	router := newTestRouter(t, fake, 0)

	w := doGet(router, "/checkins?placeId=5&dateFrom=1700000000000")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Contains(t, body.Message, "dateTo")
}

func TestCheckinsValidation(t *testing.T) {
	fake := &fakeHanet{
		checkins: func(form url.Values, page int) string { return `{"returnCode":1,"data":[]}` },
	}
	router := newTestRouter(t, fake, 0)

	for name, target := range map[string]string{
		"missing placeId":    "/checkins?dateFrom=1&dateTo=2",
		"non-numeric":        "/checkins?placeId=5&dateFrom=abc&dateTo=2",
		"from after to":      "/checkins?placeId=5&dateFrom=2&dateTo=1",
		"missing both dates": "/checkins?placeId=5",
	} {
		w := doGet(router, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
}

func TestCheckinsPartialChunkFailure(t *testing.T) {
	// Six days split into two 3-day chunks: the first chunk always fails
	// logically, the second has valid data. The request must still succeed
	// with the surviving chunk's contribution.
	from := int64(1700000000000)
	to := from + 6*86400000
	chunkBStart := from + 3*86400000
	ts := chunkBStart + 3600000

	fake := &fakeHanet{
		checkins: func(form url.Values, page int) string {
			if form.Get("from") == strconv.FormatInt(from, 10) {
				return `{"returnCode":-2020,"returnMessage":"invalid timestamp"}`
			}
			if page == 1 {
				return fmt.Sprintf(`{"returnCode":1,"data":[%s]}`, eventJSON("P2", "2023-11-18", ts))
			}
			return `{"returnCode":1,"data":[]}`
		},
	}

	router := newTestRouter(t, fake, 0)
	w := doGet(router, fmt.Sprintf("/checkins?placeId=5&dateFrom=%d&dateTo=%d", from, to))
	require.Equal(t, http.StatusOK, w.Code)

	var result []models.PersonDaySummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result, 1)
	assert.Equal(t, "P2", result[0].PersonID)
}

func TestCheckinsLookbackResultsTrimmedToRange(t *testing.T) {
	from := int64(1700000000000)
	to := from + 86400000
	beforeRange := from - 3600000

	fake := &fakeHanet{
		checkins: func(form url.Values, page int) string {
			if page == 1 {
				return fmt.Sprintf(`{"returnCode":1,"data":[%s,%s]}`,
					eventJSON("P1", "2023-11-14", beforeRange),
					eventJSON("P2", "2023-11-15", from+7200000))
			}
			return `{"returnCode":1,"data":[]}`
		},
	}

	router := newTestRouter(t, fake, 1)
	w := doGet(router, fmt.Sprintf("/checkins?placeId=5&dateFrom=%d&dateTo=%d", from, to))
	require.Equal(t, http.StatusOK, w.Code)

	var result []models.PersonDaySummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	// The event before the requested range arrives through the lookback
	// chunk (twice, even) but must not survive the final trim.
	require.Len(t, result, 1)
	assert.Equal(t, "P2", result[0].PersonID)
}

func TestCheckinsAuthFailureIsUnauthorized(t *testing.T) {
	fake := &fakeHanet{
		tokenStatus: http.StatusInternalServerError,
		checkins:    func(form url.Values, page int) string { return `{"returnCode":1,"data":[]}` },
	}
	router := newTestRouter(t, fake, 0)

	w := doGet(router, "/checkins?placeId=5&dateFrom=1700000000000&dateTo=1700086400000")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
}

func TestListPlaces(t *testing.T) {
	fake := &fakeHanet{
		places:   `{"returnCode":1,"data":[{"id":5,"name":"HQ"}]}`,
		checkins: func(form url.Values, page int) string { return `{"returnCode":1,"data":[]}` },
	}
	router := newTestRouter(t, fake, 0)

	w := doGet(router, "/place")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool           `json:"success"`
		Data    []models.Place `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "5", body.Data[0].ID)
}

func TestListDevicesRequiresPlaceID(t *testing.T) {
	fake := &fakeHanet{
		devices:  `{"returnCode":1,"data":[]}`,
		checkins: func(form url.Values, page int) string { return `{"returnCode":1,"data":[]}` },
	}
	router := newTestRouter(t, fake, 0)

	w := doGet(router, "/device")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doGet(router, "/device?placeId=5")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeviceUnknownPlaceIsNotFound(t *testing.T) {
	fake := &fakeHanet{
		devices:  `{"returnCode":-9004,"returnMessage":"place not found"}`,
		checkins: func(form url.Values, page int) string { return `{"returnCode":1,"data":[]}` },
	}
	router := newTestRouter(t, fake, 0)

	w := doGet(router, "/device?placeId=unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTodayPeopleSnapshot(t *testing.T) {
	fake := &fakeHanet{
		places:   `{"returnCode":1,"data":[{"id":"5","name":"HQ"}]}`,
		checkins: func(form url.Values, page int) string { return `{"returnCode":1,"data":[]}` },
	}
	router := newTestRouter(t, fake, 0)

	w := doGet(router, "/people")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool                      `json:"success"`
		Data    []models.PersonDaySummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.NotNil(t, body.Data)
}
