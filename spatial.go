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

package coverage

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/geocell-labs/coverage/internal/apierror"
	"github.com/geocell-labs/coverage/model"
	"github.com/geocell-labs/coverage/store"
)

// Signal strength bounds in dBm, also the defaults for grid queries that
// don't constrain the range.
const (
	MinSignalStrength = -150.0
	MaxSignalStrength = 0.0
)

// GetCellCoverage returns the latest accepted measurement for one cell.
func (c *Coverage) GetCellCoverage(ctx context.Context, cellID string) (*model.CoverageRecord, error) {
	ctx, span := tracer.Start(ctx, "Querying Cell Coverage")
	defer span.End()
	span.SetAttributes(attribute.String("cell.id", cellID))

	record, err := c.coverageStore.GetCell(ctx, cellID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Cell not found", nil)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to read cell coverage", err)
	}
	return record, nil
}

// QueryGridCoverage returns every measurement in one grid bucket whose
// signal strength falls within [minSignal, maxSignal].
func (c *Coverage) QueryGridCoverage(ctx context.Context, gridID string, minSignal, maxSignal float64) ([]model.CoverageRecord, error) {
	ctx, span := tracer.Start(ctx, "Querying Grid Coverage")
	defer span.End()
	span.SetAttributes(attribute.String("grid.id", gridID))

	if minSignal > maxSignal {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "min_signal cannot exceed max_signal", nil)
	}

	records, err := c.coverageStore.QueryGrid(ctx, gridID, minSignal, maxSignal)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to query grid coverage", err)
	}
	return records, nil
}
