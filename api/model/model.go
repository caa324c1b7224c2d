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
package model

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/geocell-labs/coverage/model"
)

// IngestRequest is the submission body for a coverage batch.
type IngestRequest struct {
	Points   []model.CoveragePoint `json:"points"`
	Metadata model.BatchMetadata   `json:"metadata"`
}

func (r *IngestRequest) ValidateIngestRequest() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Points,
			validation.Required.Error("request must include non-empty points array"),
			validation.Length(1, model.MaxBatchSize).Error(fmt.Sprintf("batch size cannot exceed %d points", model.MaxBatchSize)),
		),
	)
}

func (r *IngestRequest) ToBatch() *model.Batch {
	return model.NewBatch(r.Points, r.Metadata)
}

// GridQuery carries the optional signal bounds for a grid read. Zero values
// widen to the full dBm range.
type GridQuery struct {
	MinSignal float64 `form:"min_signal"`
	MaxSignal float64 `form:"max_signal"`
}
