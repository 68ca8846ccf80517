package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "reyu/pkg/domain"
	dErrors "reyu/pkg/domain-errors"
)

type DiamondStatus string

const (
	DiamondAvailable DiamondStatus = "available"
	DiamondListed    DiamondStatus = "listed"
	DiamondLocked    DiamondStatus = "locked"
	DiamondCompleted DiamondStatus = "completed"
)

// diamondTransitions lists every legal stone movement. listed→available covers
// a withdrawn listing; locked→available covers a cancelled deal.
var diamondTransitions = map[DiamondStatus][]DiamondStatus{
	DiamondAvailable: {DiamondListed},
	DiamondListed:    {DiamondAvailable, DiamondLocked},
	DiamondLocked:    {DiamondCompleted, DiamondAvailable},
}

func (s DiamondStatus) CanTransitionTo(to DiamondStatus) bool {
	for _, allowed := range diamondTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

var (
	validShapes    = set("round", "princess", "cushion", "oval", "emerald", "pear", "marquise", "radiant", "asscher", "heart")
	validColors    = set("D", "E", "F", "G", "H", "I", "J", "K", "L", "M")
	validClarities = set("FL", "IF", "VVS1", "VVS2", "VS1", "VS2", "SI1", "SI2", "I1", "I2", "I3")
	validCuts      = set("Excellent", "Very Good", "Good", "Fair", "Poor")
	validLabs      = set("GIA", "IGI", "AGS", "HRD", "EGL")
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// Diamond is a physical stone in its owner's inventory. Its status is moved
// only by listing and deal events.
type Diamond struct {
	ID                id.DiamondID    `json:"id"`
	OwnerID           id.UserID       `json:"owner_id"`
	Shape             string          `json:"shape"`
	CaratWeight       decimal.Decimal `json:"carat_weight"`
	Color             string          `json:"color"`
	Clarity           string          `json:"clarity"`
	Cut               string          `json:"cut"`
	Polish            string          `json:"polish,omitempty"`
	Symmetry          string          `json:"symmetry,omitempty"`
	Fluorescence      string          `json:"fluorescence,omitempty"`
	Measurements      string          `json:"measurements,omitempty"`
	Lab               string          `json:"lab"`
	CertificateNumber string          `json:"certificate_number"`
	ImageURLs         []string        `json:"image_urls,omitempty"`
	Status            DiamondStatus   `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// DiamondSpec is the grading data supplied when a stone enters inventory.
type DiamondSpec struct {
	Shape             string          `json:"shape"`
	CaratWeight       decimal.Decimal `json:"carat_weight"`
	Color             string          `json:"color"`
	Clarity           string          `json:"clarity"`
	Cut               string          `json:"cut"`
	Polish            string          `json:"polish"`
	Symmetry          string          `json:"symmetry"`
	Fluorescence      string          `json:"fluorescence"`
	Measurements      string          `json:"measurements"`
	Lab               string          `json:"lab"`
	CertificateNumber string          `json:"certificate_number"`
	ImageURLs         []string        `json:"image_urls"`
}

func (s DiamondSpec) Validate() error {
	if _, ok := validShapes[strings.ToLower(s.Shape)]; !ok {
		return dErrors.New(dErrors.CodeValidation, "unknown shape")
	}
	if !s.CaratWeight.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "carat weight must be positive")
	}
	if _, ok := validColors[s.Color]; !ok {
		return dErrors.New(dErrors.CodeValidation, "unknown color grade")
	}
	if _, ok := validClarities[s.Clarity]; !ok {
		return dErrors.New(dErrors.CodeValidation, "unknown clarity grade")
	}
	if _, ok := validCuts[s.Cut]; !ok {
		return dErrors.New(dErrors.CodeValidation, "unknown cut grade")
	}
	for _, g := range []string{s.Polish, s.Symmetry} {
		if _, ok := validCuts[g]; g != "" && !ok {
			return dErrors.New(dErrors.CodeValidation, "unknown polish or symmetry grade")
		}
	}
	if _, ok := validLabs[s.Lab]; !ok {
		return dErrors.New(dErrors.CodeValidation, "unknown certification lab")
	}
	if strings.TrimSpace(s.CertificateNumber) == "" {
		return dErrors.New(dErrors.CodeValidation, "certificate number is required")
	}
	return nil
}

func NewDiamond(diamondID id.DiamondID, owner id.UserID, spec DiamondSpec, now time.Time) (*Diamond, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Diamond{
		ID:                diamondID,
		OwnerID:           owner,
		Shape:             strings.ToLower(spec.Shape),
		CaratWeight:       spec.CaratWeight.Round(2),
		Color:             spec.Color,
		Clarity:           spec.Clarity,
		Cut:               spec.Cut,
		Polish:            spec.Polish,
		Symmetry:          spec.Symmetry,
		Fluorescence:      spec.Fluorescence,
		Measurements:      spec.Measurements,
		Lab:               spec.Lab,
		CertificateNumber: strings.TrimSpace(spec.CertificateNumber),
		ImageURLs:         spec.ImageURLs,
		Status:            DiamondAvailable,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CanList reports whether seller may list this stone.
func (d *Diamond) CanList(seller id.UserID) error {
	if d.OwnerID != seller {
		return dErrors.New(dErrors.CodeInvalidState, "diamond is not owned by seller")
	}
	if d.Status != DiamondAvailable {
		return dErrors.New(dErrors.CodeInvalidState, "diamond is not available")
	}
	return nil
}
