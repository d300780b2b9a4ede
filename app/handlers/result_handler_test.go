package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"provision-svc/app/domains"
	"provision-svc/app/dto"
	"provision-svc/app/services"
	"provision-svc/app/utils"
	"provision-svc/storage/memory"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResultRouter(t *testing.T) (*gin.Engine, *memory.Store, int64) {
	t.Helper()
	store := memory.NewStore()
	owner := "admin"
	store.AddNode(domains.Node{NodeID: "node-1", Hostname: "alpha", Status: domains.NodeStatusCommissioning, Owner: &owner})
	set, err := store.AddScriptSet("node-1", domains.ResultTypeCommissioning, "lshw")
	require.NoError(t, err)

	err = services.NewStatusApplier(store, zerolog.Nop()).ProcessMessages(context.Background(), services.Batch{
		NodeID: "node-1",
		Messages: []domains.StatusMessage{{
			EventType:   domains.EventTypeFinish,
			Origin:      "cloud-init",
			Name:        "commissioning",
			Description: "Commissioning",
			Result:      domains.ResultSuccess,
			Files: []domains.FileAttachment{
				{Path: "lshw.out", Encoding: utils.EncodingBase64, Content: utils.EncodePayload([]byte("<list/>\n"))},
				{Path: "lshw.yaml", Encoding: utils.EncodingBase64, Content: utils.EncodePayload([]byte("status: passed\n"))},
			},
		}},
	})
	require.NoError(t, err)

	lshw := store.ScriptResultByName(set.ID, "lshw")
	require.NotNil(t, lshw)

	handler := NewResultHandler(services.NewResultService(store))
	router := gin.New()
	router.GET("/v1/nodes", handler.ListNodes)
	router.GET("/v1/nodes/:node_id/events", handler.ListEvents)
	router.GET("/v1/nodes/:node_id/results", handler.ListResults)
	router.GET("/v1/results/:id/data", handler.GetResultData)
	return router, store, lshw.ID
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestResultHandler_ListNodes(t *testing.T) {
	router, _, _ := newResultRouter(t)

	w := get(router, "/v1/nodes")
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListNodesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Nodes, 1)
	assert.Equal(t, "node-1", resp.Nodes[0].NodeID)
	assert.Equal(t, "alpha", resp.Nodes[0].Hostname)
	assert.Equal(t, string(domains.NodeStatusCommissioning), resp.Nodes[0].Status)
	assert.Equal(t, []string{}, resp.Nodes[0].Tags)
}

func TestResultHandler_ListEvents(t *testing.T) {
	router, _, _ := newResultRouter(t)

	w := get(router, "/v1/nodes/node-1/events")
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.ListEventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "'cloud-init' Commissioning", resp.Events[0].Description)

	assert.Equal(t, http.StatusNotFound, get(router, "/v1/nodes/missing/events").Code)
}

func TestResultHandler_ListResults(t *testing.T) {
	router, _, _ := newResultRouter(t)

	w := get(router, "/v1/nodes/node-1/results?result_type=commissioning")
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.ListResultsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	result := resp.Results[0]
	assert.Equal(t, "lshw", result.Name)
	assert.Equal(t, "commissioning", result.ResultType)
	assert.Equal(t, "Passed", result.StatusName)
	require.NotNil(t, result.ExitStatus)
	assert.Equal(t, 0, *result.ExitStatus)
	assert.Equal(t, "passed", result.Results["status"])

	assert.Equal(t, http.StatusBadRequest, get(router, "/v1/nodes/node-1/results?result_type=bogus").Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/v1/nodes/missing/results").Code)
}

func TestResultHandler_GetResultData(t *testing.T) {
	router, _, id := newResultRouter(t)

	w := get(router, fmt.Sprintf("/v1/results/%d/data?data_type=stdout", id))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<list/>", w.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(router, fmt.Sprintf("/v1/results/%d/data?data_type=binary", id)).Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/v1/results/abc/data").Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/v1/results/9999/data").Code)
}
