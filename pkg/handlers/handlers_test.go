package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	config "psychometrics-api/configs"
	"psychometrics-api/pkg/models"
	"psychometrics-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(&config.Config{
		Environment:        "test",
		CalibrationTimeout: 30 * time.Second,
		Engine:             services.DefaultIRTOptions(),
	})
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doUpload(t *testing.T, router *gin.Engine, path, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest("POST", path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
	s, _ := body["error_type"].(string)
	return s
}

func binaryAssessment(id string, rows [][]int) models.AssessmentData {
	data := models.AssessmentData{AssessmentID: id}
	for _, row := range rows {
		var responses []models.ItemResponse
		for j, v := range row {
			responses = append(responses, models.ItemResponse{QuestionID: string(rune('A' + j)), Correct: v == 1})
		}
		data.Responses = append(data.Responses, responses)
	}
	return data
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter()
	for _, path := range []string{"/", "/health"} {
		req, err := http.NewRequest("GET", path, nil)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "status")
		assert.Contains(t, w.Body.String(), ServiceName)
	}
}

func TestAssessReliability(t *testing.T) {
	router := newTestRouter()
	w := doJSON(t, router, "POST", "/api/analysis/assess-reliability", binaryAssessment("quiz-1", [][]int{
		{1, 1, 0},
		{1, 0, 0},
		{0, 1, 1},
		{0, 0, 1},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.AnalysisResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "quiz-1", resp.AssessmentID)
	assert.Equal(t, "kr20", resp.Reliability.Method)
	assert.InDelta(t, -3.0, resp.Reliability.Coefficient, 1e-9)
	require.Len(t, resp.ItemAnalysis, 3)
	assert.Equal(t, "A", resp.ItemAnalysis[0].QuestionID)
	assert.InDelta(t, 0.5, resp.ItemAnalysis[0].Difficulty, 1e-12)
	assert.NotEmpty(t, resp.Recommendations)
}

func TestAssessReliabilityErrors(t *testing.T) {
	router := newTestRouter()

	w := doJSON(t, router, "POST", "/api/analysis/assess-reliability", `{"responses": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", errorType(t, w))

	w = doJSON(t, router, "POST", "/api/analysis/assess-reliability", binaryAssessment("one", [][]int{{1, 0}}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", errorType(t, w))

	w = doJSON(t, router, "POST", "/api/analysis/assess-reliability", binaryAssessment("flat", [][]int{{1, 0}, {0, 1}}))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "degenerate_data", errorType(t, w))
}

func TestItemAnalysis(t *testing.T) {
	router := newTestRouter()
	w := doJSON(t, router, "POST", "/api/analysis/item-analysis", binaryAssessment("quiz-2", [][]int{
		{1, 1, 1},
		{1, 0, 1},
		{0, 0, 1},
		{1, 1, 0},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.ItemAnalysisResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "quiz-2", resp.AssessmentID)
	require.Len(t, resp.ItemAnalysis, 3)
	assert.InDelta(t, 0.75, resp.ItemAnalysis[0].Difficulty, 1e-12)
}

func TestUploadAssessment(t *testing.T) {
	router := newTestRouter()
	csv := []byte("student_id,Q1,Q2,Q3\ns1,2,1,1\ns2,1,0,1\ns3,0,0,0\ns4,2,1,0\n")
	w := doUpload(t, router, "/api/analysis/upload", "scores.csv", csv, map[string]string{
		"assessment_id": "midterm",
		"max_points":    "2",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.AnalysisResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "midterm", resp.AssessmentID)
	assert.Equal(t, 4, resp.Reliability.ExamineeCount)
	assert.Equal(t, "cronbach_alpha", resp.Reliability.Method)
	assert.InDelta(t, 5.0/8.0, resp.ItemAnalysis[0].Difficulty, 1e-12)

	w = doUpload(t, router, "/api/analysis/upload", "scores.txt", csv, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doUpload(t, router, "/api/analysis/upload", "scores.csv", csv, map[string]string{"max_points": "lots"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadTooLarge(t *testing.T) {
	router := newTestRouter()
	large := append([]byte("student_id,Q1,Q2\n"), bytes.Repeat([]byte("s,1,0\n"), (maxUploadBytes/6)+1024)...)
	require.Greater(t, len(large), maxUploadBytes)

	w := doUpload(t, router, "/api/analysis/upload", "scores.csv", large, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "payload_too_large", errorType(t, w))
}

func simulatedResponses(n, k int) [][]int {
	items := make([]models.ItemParameters, k)
	for j := range items {
		items[j] = models.ItemParameters{Difficulty: -1.5 + 3*float64(j)/float64(k-1), Discrimination: 1.2}
	}
	thetas := make([]float64, n)
	for i := range thetas {
		thetas[i] = -2 + 4*float64(i)/float64(n-1)
	}
	return services.SimulateResponses(items, thetas, rand.New(rand.NewSource(17)))
}

func TestCalibrate(t *testing.T) {
	router := newTestRouter()
	w := doJSON(t, router, "POST", "/api/irt/calibrate", models.ItemCalibrationRequest{
		AssessmentID: "pilot",
		Responses:    simulatedResponses(300, 6),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.ItemCalibrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pilot", resp.AssessmentID)
	assert.Equal(t, models.Model2PL, resp.ModelType)
	require.Len(t, resp.ItemParameters, 6)
	assert.Equal(t, 12, resp.ModelFit.FreeParameters)
	// 困難度は生成時の順序（易→難）を保つ
	assert.Less(t, resp.ItemParameters[0].Difficulty, resp.ItemParameters[5].Difficulty)
}

func TestCalibrateErrors(t *testing.T) {
	router := newTestRouter()

	w := doJSON(t, router, "POST", "/api/irt/calibrate", models.ItemCalibrationRequest{
		AssessmentID: "bad-model",
		Responses:    [][]int{{1, 0}, {0, 1}},
		ModelType:    "5PL",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", errorType(t, w))

	w = doJSON(t, router, "POST", "/api/irt/calibrate", models.ItemCalibrationRequest{
		AssessmentID: "uniform",
		Responses:    [][]int{{1, 0}, {1, 0}, {1, 0}},
		ModelType:    "1PL",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, router, "POST", "/api/irt/calibrate", `{"responses": [[1,0],[0,1]]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "assessment_id is required")
}

func TestCalibrateCancelled(t *testing.T) {
	router := newTestRouter()
	body, err := json.Marshal(models.ItemCalibrationRequest{
		AssessmentID: "slow",
		Responses:    simulatedResponses(200, 5),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequestWithContext(ctx, "POST", "/api/irt/calibrate", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "timeout", errorType(t, w))
}

func TestCalibrateUpload(t *testing.T) {
	router := newTestRouter()
	var buf bytes.Buffer
	responses := simulatedResponses(200, 5)
	examinees := make([]string, len(responses))
	for i := range examinees {
		examinees[i] = string(rune('a'+i%26)) + string(rune('0'+i/26))
	}
	require.NoError(t, services.WriteResponseFile(&buf, "pilot.xlsx", []string{"I1", "I2", "I3", "I4", "I5"}, examinees, responses))

	w := doUpload(t, router, "/api/irt/calibrate/upload", "pilot.xlsx", buf.Bytes(), map[string]string{"model_type": "1pl"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.ItemCalibrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "upload", resp.AssessmentID)
	assert.Equal(t, models.Model1PL, resp.ModelType)
	for _, it := range resp.ItemParameters {
		assert.Equal(t, 1.0, it.Discrimination)
	}

	w = doUpload(t, router, "/api/irt/calibrate/upload", "scores.csv", []byte("q1,q2\n2,0\n1,1\n"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "non-binary scores")
}

func abilityItems() []models.ItemParameters {
	return []models.ItemParameters{
		{ModelType: models.Model2PL, Difficulty: -1, Discrimination: 1},
		{ModelType: models.Model2PL, Difficulty: -0.5, Discrimination: 1},
		{ModelType: models.Model2PL, Difficulty: 0.5, Discrimination: 1},
		{ModelType: models.Model2PL, Difficulty: 1, Discrimination: 1},
	}
}

func TestEstimateAbility(t *testing.T) {
	router := newTestRouter()
	w := doJSON(t, router, "POST", "/api/irt/estimate-ability", models.AbilityEstimationRequest{
		StudentResponses: []int{1, 1, 1, 1},
		ItemParameters:   abilityItems(),
		ConfidenceLevel:  0.9,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var est models.AbilityEstimate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &est))
	assert.Equal(t, 4.0, est.Theta)
	assert.True(t, est.AtBoundary)
	assert.Equal(t, "upper", est.Boundary)
	assert.InDelta(t, est.Theta-1.644854*est.StandardError, est.ConfidenceInterval[0], 1e-3)

	w = doJSON(t, router, "POST", "/api/irt/estimate-ability", models.AbilityEstimationRequest{
		StudentResponses: []int{1, 1},
		ItemParameters:   abilityItems(),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, "POST", "/api/irt/estimate-ability", models.AbilityEstimationRequest{
		StudentResponses: []int{1, 1, 0, 0},
		ItemParameters:   abilityItems(),
		ConfidenceLevel:  1.5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	items := abilityItems()
	items[1].ModelType = "9PL"
	w = doJSON(t, router, "POST", "/api/irt/estimate-ability", models.AbilityEstimationRequest{
		StudentResponses: []int{1, 1, 0, 0},
		ItemParameters:   items,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", errorType(t, w))
	assert.Contains(t, w.Body.String(), "unknown model type")
}

func TestEstimateAbilityBatch(t *testing.T) {
	router := newTestRouter()
	w := doJSON(t, router, "POST", "/api/irt/estimate-ability/batch", models.BatchAbilityRequest{
		Responses:      [][]int{{1, 1, 0, 0}, {0, 0, 0, 0}, {1, 1, 1, 0}},
		ItemParameters: abilityItems(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.BatchAbilityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.Count)
	assert.InDelta(t, 0.0, resp.Estimates[0].Theta, 1e-4)
	assert.Equal(t, -4.0, resp.Estimates[1].Theta)
	assert.Greater(t, resp.Estimates[2].Theta, 0.0)
}

func TestInformationCurve(t *testing.T) {
	router := newTestRouter()
	from, to := -2.0, 2.0
	w := doJSON(t, router, "POST", "/api/irt/information", models.InformationRequest{
		ItemParameters: abilityItems(),
		ThetaMin:       &from,
		ThetaMax:       &to,
		Step:           1,
		IncludeItems:   true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Curve []models.InformationPoint `json:"curve"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Curve, 5)
	assert.Len(t, resp.Curve[0].ItemInformation, 4)

	// 既定のグリッドは -4..4、刻み 0.5
	w = doJSON(t, router, "POST", "/api/irt/information", models.InformationRequest{ItemParameters: abilityItems()})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Curve, 17)

	// 点数がintに収まらないグリッドも400
	lo, hi := -1e308, 1e308
	w = doJSON(t, router, "POST", "/api/irt/information", models.InformationRequest{
		ItemParameters: abilityItems(),
		ThetaMin:       &lo,
		ThetaMax:       &hi,
		Step:           1e-300,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", errorType(t, w))
}

func TestNextItem(t *testing.T) {
	router := newTestRouter()
	w := doJSON(t, router, "POST", "/api/irt/next-item", models.NextItemRequest{
		Theta:          0.6,
		ItemParameters: abilityItems(),
		Administered:   []int{2},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.NextItemResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.ItemIndex)
	assert.Greater(t, resp.Information, 0.0)

	w = doJSON(t, router, "POST", "/api/irt/next-item", models.NextItemRequest{
		ItemParameters: abilityItems(),
		Administered:   []int{0, 1, 2, 3},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredictionsNotImplemented(t *testing.T) {
	router := newTestRouter()
	w := doJSON(t, router, "POST", "/api/predictions/predict-eoc", models.PredictionRequest{StudentID: "st-1"})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, "not_implemented", errorType(t, w))

	w = doJSON(t, router, "POST", "/api/predictions/predict-eoc", `{"days_until_eoc": 10}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "student_id is required")

	w = doJSON(t, router, "POST", "/api/predictions/batch-predict", []models.PredictionRequest{{StudentID: "a"}, {StudentID: "b"}})
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	w = doJSON(t, router, "POST", "/api/predictions/batch-predict", `[]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMonitoringLogs(t *testing.T) {
	router := newTestRouter()
	doJSON(t, router, "POST", "/api/analysis/assess-reliability", `{}`)

	req, _ := http.NewRequest("GET", "/api/monitoring/logs?period=1h", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var data services.DashboardData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	assert.Equal(t, 1, data.TotalRequests)
	assert.Equal(t, 1, data.StatusCodes["4xx Client Error"])

	req, _ = http.NewRequest("GET", "/api/monitoring/logs?period=30d", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
