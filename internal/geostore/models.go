package geostore

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// Schema is the Postgres schema that holds every table of the service.
const Schema = "fiscaliza"

// GeographicSRID is the CRS of every stored geometry.
const GeographicSRID = 4326

// Report is a filed complaint ("denuncia"). Its lifecycle belongs to the
// reporting service; the analysis engine only checks that it exists.
type Report struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	InspectedAt time.Time `gorm:"not null" json:"inspected_at"`
	Place       *string   `json:"place,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Report) TableName() string {
	return "fiscaliza.reports"
}

// EvidencePoint is one GPS observation tied to a report. The geometry lives in
// the geom column and is read through ST_AsBinary.
type EvidencePoint struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	ReportID    int64     `gorm:"not null;index" json:"report_id"`
	CapturedAt  time.Time `gorm:"not null" json:"captured_at"`
	Description *string   `json:"description,omitempty"`
	PhotoURL    *string   `json:"photo_url,omitempty"`

	Location orb.Point `gorm:"-" json:"location"`
}

func (EvidencePoint) TableName() string {
	return "fiscaliza.evidence_points"
}

// Concession is a registered aquaculture area. Reference data loaded by the
// layer importer.
type Concession struct {
	ID     int64   `gorm:"primaryKey" json:"id"`
	Code   int64   `gorm:"not null;index" json:"code"`
	Holder string  `gorm:"not null" json:"holder"`
	Kind   *string `json:"kind,omitempty"`
	Name   *string `json:"name,omitempty"`
	Region *string `json:"region,omitempty"`

	Geometry orb.MultiPolygon `gorm:"-" json:"-"`
}

func (Concession) TableName() string {
	return "fiscaliza.concessions"
}

// LandMask is one polygon of the land layer subtracted from buffers.
type LandMask struct {
	ID   int64  `gorm:"primaryKey" json:"id"`
	Name string `json:"name"`

	Geometry orb.MultiPolygon `gorm:"-" json:"-"`
}

func (LandMask) TableName() string {
	return "fiscaliza.land_mask"
}

// Analysis is one execution of the buffer/intersection computation. Buffer is
// nil until the computation finished; a persisted row that keeps a nil buffer
// marks a failed attempt.
type Analysis struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	ReportID     int64     `gorm:"not null;index" json:"report_id"`
	ExecutedAt   time.Time `gorm:"not null;index" json:"executed_at"`
	RadiusMeters float64   `gorm:"column:radius_m;not null" json:"radius_m"`
	Method       *string   `json:"method,omitempty"`
	Notes        *string   `json:"notes,omitempty"`

	Buffer orb.Geometry `gorm:"-" json:"-"`
}

func (Analysis) TableName() string {
	return "fiscaliza.analyses"
}

// Complete reports whether the buffer was computed and stored.
func (a Analysis) Complete() bool {
	return a.Buffer != nil
}

// AnalysisResult is one intersecting concession of an analysis.
type AnalysisResult struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	AnalysisID        uuid.UUID `gorm:"type:uuid;not null;index" json:"analysis_id"`
	ConcessionID      int64     `gorm:"not null;index" json:"concession_id"`
	Intersects        bool      `gorm:"not null" json:"intersects"`
	MinDistanceMeters *float64  `gorm:"column:min_distance_m" json:"min_distance"`

	Analysis *Analysis `gorm:"foreignKey:AnalysisID;constraint:OnDelete:CASCADE" json:"-"`
}

func (AnalysisResult) TableName() string {
	return "fiscaliza.analysis_results"
}

// ConcessionHit is the evaluation of one concession against a buffer.
type ConcessionHit struct {
	ConcessionID      int64    `json:"concession_id"`
	Code              int64    `json:"code"`
	Holder            string   `json:"holder"`
	Kind              string   `json:"kind,omitempty"`
	Region            string   `json:"region,omitempty"`
	Intersects        bool     `json:"intersects"`
	MinDistanceMeters *float64 `json:"min_distance"`
}

// AnalysisFilter narrows ListAnalyses. Zero values mean "no constraint".
type AnalysisFilter struct {
	ReportID *int64
	BBox     *orb.Bound
	Limit    int
}
