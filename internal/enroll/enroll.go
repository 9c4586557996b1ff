// Package enroll implements face template enrollment (POST
// /api/enroll_face): turn 1-10 submitted images of an employee into a
// single stored FaceTemplate, deactivating any previous one.
//
// Built around a service-with-injected-face-oracle shape. Quality
// scoring is deliberately not a decision strategy here — every accepted
// image already cleared the oracle's one-face check, so the stored
// quality_score is just the fraction of submitted images accepted.
package enroll

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/apierr"
	"github.com/technosupport/canteen-authz/internal/data"
	"github.com/technosupport/canteen-authz/internal/domain"
	"github.com/technosupport/canteen-authz/internal/oracle"
)

const ModelLabel = "face-embed-128-v1"

type EmployeeRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Employee, error)
}

type TemplateRepo interface {
	StoreActive(ctx context.Context, f *domain.FaceTemplate) error
}

type Auditor interface {
	Record(ctx context.Context, action string, employeeID *uuid.UUID, result, reasonCode string)
}

type Service struct {
	employees EmployeeRepo
	templates TemplateRepo
	face      oracle.Face
	auditor   Auditor
}

func NewService(employees EmployeeRepo, templates TemplateRepo, face oracle.Face, auditor Auditor) *Service {
	return &Service{employees: employees, templates: templates, face: face, auditor: auditor}
}

// Result mirrors POST /api/enroll_face's response shape.
type Result struct {
	EmployeeID   uuid.UUID
	FaceID       uuid.UUID
	QualityScore float64
	Model        string
}

// Enroll decodes each of images, keeps the ones with a single clean face,
// and stores their averaged embedding as the employee's new active
// template. At least one usable image is required.
func (s *Service) Enroll(ctx context.Context, employeeID uuid.UUID, images [][]byte) (*Result, error) {
	if len(images) == 0 || len(images) > 10 {
		return nil, apierr.FromCode("BAD_REQUEST", "images must contain between 1 and 10 images")
	}

	employee, err := s.employees.GetByID(ctx, employeeID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return nil, apierr.FromCode("BAD_REQUEST", "employee not found")
	}
	if err != nil {
		return nil, err
	}

	var sum [domain.FaceEmbeddingDim]float32
	accepted := 0
	var lastErr error
	for _, img := range images {
		frame, err := s.face.Decode(ctx, img)
		if err != nil {
			lastErr = err
			continue
		}
		detection, err := s.face.DetectAndEncode(ctx, frame)
		if err != nil {
			lastErr = err
			continue
		}
		for i, v := range detection.Embedding {
			sum[i] += v
		}
		accepted++
	}

	if accepted == 0 {
		if lastErr != nil {
			return nil, mapFaceOracleErr(lastErr)
		}
		return nil, apierr.FromCode("FACE_NOT_FOUND", "no usable face found in any submitted image")
	}

	var avg [domain.FaceEmbeddingDim]float32
	for i := range sum {
		avg[i] = sum[i] / float32(accepted)
	}

	template := &domain.FaceTemplate{
		EmployeeID:   employee.ID,
		Embedding:    avg,
		Active:       true,
		ModelLabel:   ModelLabel,
		QualityScore: float64(accepted) / float64(len(images)),
	}
	if err := s.templates.StoreActive(ctx, template); err != nil {
		return nil, err
	}

	if s.auditor != nil {
		s.auditor.Record(ctx, "face.enrolled", &employee.ID, "success", "")
	}

	return &Result{
		EmployeeID:   employee.ID,
		FaceID:       template.ID,
		QualityScore: template.QualityScore,
		Model:        template.ModelLabel,
	}, nil
}

func mapFaceOracleErr(err error) error {
	switch {
	case errors.Is(err, oracle.ErrFaceNotFound):
		return apierr.FromCode("FACE_NOT_FOUND", "no face detected")
	case errors.Is(err, oracle.ErrMultipleFaces):
		return apierr.FromCode("MULTIPLE_FACES", "more than one face detected")
	case errors.Is(err, oracle.ErrFaceTooSmall):
		return apierr.FromCode("FACE_TOO_SMALL", "face too small in frame")
	case errors.Is(err, oracle.ErrLowLight):
		return apierr.FromCode("LOW_LIGHT", "insufficient light")
	case errors.Is(err, oracle.ErrBlurry):
		return apierr.FromCode("BLURRY", "frame too blurry")
	default:
		return err
	}
}
