package models

import "time"

// PointRecord is one row of the source dataset after parsing. Records are
// created once during the load pass and shared read-only afterwards.
type PointRecord struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Level         string            `json:"level,omitempty"`
	Latitude      float64           `json:"latitude"`
	Longitude     float64           `json:"longitude"`
	AuxiliaryCode string            `json:"auxiliaryCode,omitempty"`
	RegionIDs     []string          `json:"regionIds"`
	RawFields     map[string]string `json:"-"`
}

// NearestResult is a PointRecord annotated with its great-circle distance
// from the query point, rounded to the nearest whole meter.
type NearestResult struct {
	PointRecord
	DistanceMeters float64 `json:"distanceMeters"`
}

// IndexStats describes the single build attempt of the spatial index.
type IndexStats struct {
	SourcePath          string    `json:"sourcePath"`
	TotalRowsSeen       int       `json:"totalRowsSeen"`
	TotalRowsIndexed    int       `json:"totalRowsIndexed"`
	TotalRowsSkipped    int       `json:"totalRowsSkipped"`
	BuildDurationMillis int64     `json:"buildDurationMillis"`
	BuiltAt             time.Time `json:"builtAt"`
	UsingTreeIndex      bool      `json:"usingTreeIndex"`
}
