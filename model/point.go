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
	"errors"
	"fmt"
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CoveragePoint is a single signal-coverage measurement reported by a cell.
type CoveragePoint struct {
	CellID         string  `json:"cell_id"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	SignalStrength float64 `json:"signal_strength"` // dBm
	Accuracy       float64 `json:"accuracy,omitempty"`
	Timestamp      string  `json:"timestamp,omitempty"` // RFC 3339, defaults to processing time
}

// GridID derives the coarse spatial bucket for the point by flooring its
// coordinates. Negative coordinates floor towards negative infinity, so
// (-0.5, -0.5) lands in "-1_-1", not "0_0".
func (p *CoveragePoint) GridID() string {
	return fmt.Sprintf("%d_%d", int(math.Floor(p.Latitude)), int(math.Floor(p.Longitude)))
}

// Validate checks a single coverage point against the measurement contract:
// a reporting cell id, coordinates on the globe, a plausible dBm reading,
// a positive accuracy when present and a parsable timestamp when present.
func (p *CoveragePoint) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.CellID, validation.Required.Error("missing cell_id")),
		validation.Field(&p.Latitude, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&p.Longitude, validation.Min(-180.0), validation.Max(180.0)),
		validation.Field(&p.SignalStrength, validation.Min(-150.0), validation.Max(0.0)),
		validation.Field(&p.Accuracy, validation.By(func(value interface{}) error {
			accuracy, ok := value.(float64)
			if !ok {
				return errors.New("invalid accuracy type")
			}
			if accuracy < 0 {
				return errors.New("accuracy must be a positive number")
			}
			return nil
		})),
		validation.Field(&p.Timestamp, validation.When(p.Timestamp != "", validation.By(func(value interface{}) error {
			ts, ok := value.(string)
			if !ok {
				return errors.New("invalid timestamp type")
			}
			if _, err := time.Parse(time.RFC3339, ts); err != nil {
				return errors.New("timestamp must be a valid ISO-8601 date")
			}
			return nil
		}))),
	)
}

// CoverageRecord is the persisted form of an accepted point: the measurement
// plus the derived grid bucket, the batch metadata it arrived with and its
// retention bound.
type CoverageRecord struct {
	CoveragePoint
	GridID   string        `json:"grid_id"`
	Metadata BatchMetadata `json:"metadata"`
	TTL      int64         `json:"ttl"` // epoch seconds
}

// NewCoverageRecord builds the record persisted on first successful write for
// a point. The point's own timestamp wins when present; otherwise the
// processing time is recorded, so reprocessing the same point upserts the
// same row.
func NewCoverageRecord(point CoveragePoint, metadata BatchMetadata, now time.Time, retention time.Duration) *CoverageRecord {
	if point.Timestamp == "" {
		point.Timestamp = now.UTC().Format(time.RFC3339)
	}
	if point.Accuracy == 0 {
		point.Accuracy = 1.0
	}
	return &CoverageRecord{
		CoveragePoint: point,
		GridID:        point.GridID(),
		Metadata:      metadata,
		TTL:           now.Add(retention).Unix(),
	}
}
