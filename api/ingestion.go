/*
Copyright 2025 Geocell Labs Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocell-labs/coverage"
	model2 "github.com/geocell-labs/coverage/api/model"
	"github.com/geocell-labs/coverage/internal/apierror"
)

// respondError writes the wire error envelope for a pipeline error.
func respondError(c *gin.Context, err error) {
	message := err.Error()
	if apiErr, ok := err.(apierror.APIError); ok {
		message = apiErr.Message
	}
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{
		"error": gin.H{
			"type":    apierror.WireType(err),
			"message": message,
		},
	})
}

func validationError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"type":    apierror.ErrValidation,
			"message": message,
		},
	})
}

// IngestBatch accepts a batch of coverage points for asynchronous
// processing. The whole batch is validated before anything is queued; a
// single bad point rejects the submission.
//
// Responses:
// - 202 Accepted: The batch was validated, tracked and enqueued.
// - 400 Bad Request: The submission is malformed.
func (a Api) IngestBatch(c *gin.Context) {
	var req model2.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "invalid request body: "+err.Error())
		return
	}

	if err := req.ValidateIngestRequest(); err != nil {
		validationError(c, err.Error())
		return
	}

	receipt, err := a.coverage.IngestBatch(c.Request.Context(), req.ToBatch())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, receipt)
}

// GetBatchStatus returns the aggregated processing state of one batch.
//
// Responses:
// - 200 OK: The batch status with per-state counts and records.
// - 404 Not Found: No records exist for the batch id.
func (a Api) GetBatchStatus(c *gin.Context) {
	batchID, passed := c.Params.Get("batch_id")
	if !passed {
		validationError(c, "batch_id is required. pass id in the route /coverage/batches/:batch_id/status")
		return
	}

	status, err := a.coverage.GetBatchStatus(c.Request.Context(), batchID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetCellCoverage returns the latest accepted measurement for one cell.
func (a Api) GetCellCoverage(c *gin.Context) {
	cellID, passed := c.Params.Get("cell_id")
	if !passed {
		validationError(c, "cell_id is required. pass id in the route /coverage/cells/:cell_id")
		return
	}

	record, err := a.coverage.GetCellCoverage(c.Request.Context(), cellID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// QueryGridCoverage returns the measurements of one grid bucket, optionally
// bounded by min_signal and max_signal query parameters in dBm.
func (a Api) QueryGridCoverage(c *gin.Context) {
	gridID, passed := c.Params.Get("grid_id")
	if !passed {
		validationError(c, "grid_id is required. pass id in the route /coverage/grid/:grid_id")
		return
	}

	query := model2.GridQuery{
		MinSignal: coverage.MinSignalStrength,
		MaxSignal: coverage.MaxSignalStrength,
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		validationError(c, "invalid signal bounds: "+err.Error())
		return
	}

	records, err := a.coverage.QueryGridCoverage(c.Request.Context(), gridID, query.MinSignal, query.MaxSignal)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"gridId":  gridID,
		"count":   len(records),
		"records": records,
	})
}
