package handlers

import (
	"net/http"
	"strconv"

	"provision-svc/app/domains"
	"provision-svc/app/dto"
	"provision-svc/app/services"
	"provision-svc/app/utils"

	"github.com/gin-gonic/gin"
)

// ResultHandler serves the read-only node, event and result endpoints
type ResultHandler struct {
	results *services.ResultService
}

// NewResultHandler creates a new result handler
func NewResultHandler(results *services.ResultService) *ResultHandler {
	return &ResultHandler{results: results}
}

// ListNodes handles listing all nodes
func (h *ResultHandler) ListNodes(c *gin.Context) {
	nodes, err := h.results.ListNodes(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list nodes", nil)
		return
	}

	resp := dto.ListNodesResponse{Nodes: make([]dto.NodeResponse, 0, len(nodes))}
	for _, n := range nodes {
		tags := n.Tags
		if tags == nil {
			tags = []string{}
		}
		resp.Nodes = append(resp.Nodes, dto.NodeResponse{
			NodeID:           n.NodeID,
			Hostname:         n.Hostname,
			Status:           string(n.Status),
			Owner:            n.Owner,
			ErrorDescription: n.ErrorDescription,
			Tags:             tags,
			LastSeenAt:       n.LastSeenAt,
		})
	}
	respondJSON(c, http.StatusOK, resp)
}

// ListEvents handles listing the events of a node
func (h *ResultHandler) ListEvents(c *gin.Context) {
	nodeID := c.Param("node_id")
	events, err := h.results.ListEvents(c.Request.Context(), nodeID)
	if err != nil {
		respondError(c, statusForError(err), err.Error(), nil)
		return
	}

	resp := dto.ListEventsResponse{NodeID: nodeID, Events: make([]dto.EventResponse, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, dto.EventResponse{
			ID:          e.ID,
			Type:        e.Type,
			Origin:      e.Origin,
			Name:        e.Name,
			Description: e.Description,
			Created:     e.Created,
		})
	}
	respondJSON(c, http.StatusOK, resp)
}

// ListResults handles listing the current script results of a node
func (h *ResultHandler) ListResults(c *gin.Context) {
	var query dto.ListResultsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, http.StatusBadRequest, "invalid query", nil)
		return
	}
	if err := utils.ValidateStruct(&query); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}

	nodeID := c.Param("node_id")
	results, err := h.results.ListResults(c.Request.Context(), nodeID, domains.ResultType(query.ResultType))
	if err != nil {
		respondError(c, statusForError(err), err.Error(), nil)
		return
	}

	resp := dto.ListResultsResponse{NodeID: nodeID, Results: make([]dto.ScriptResultResponse, 0, len(results))}
	for _, r := range results {
		resp.Results = append(resp.Results, dto.ScriptResultResponse{
			ID:         r.Result.ID,
			Name:       r.Result.Name,
			ResultType: string(r.ResultType),
			Status:     string(r.Result.Status),
			StatusName: r.Result.Status.Name(),
			ExitStatus: r.Result.ExitStatus,
			Runtime:    r.Result.Runtime(),
			Started:    r.Result.Started,
			Ended:      r.Result.Ended,
			Results:    r.Parsed,
			Error:      r.ParseError,
		})
	}
	respondJSON(c, http.StatusOK, resp)
}

// GetResultData handles fetching one output stream of a script result
func (h *ResultHandler) GetResultData(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid result id", nil)
		return
	}

	var query dto.ResultDataQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, http.StatusBadRequest, "invalid query", nil)
		return
	}
	if err := utils.ValidateStruct(&query); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed", map[string]string{"error": err.Error()})
		return
	}

	data, err := h.results.GetResultData(c.Request.Context(), id, query.DataType)
	if err != nil {
		respondError(c, statusForError(err), err.Error(), nil)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}
