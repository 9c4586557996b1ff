package api

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/apierr"
	"github.com/technosupport/canteen-authz/internal/enroll"
)

const maxEnrollUploadBytes = 32 << 20 // 10 images at ~3MB each, plus headroom

type EnrollHandler struct {
	Service *enroll.Service
}

func NewEnrollHandler(svc *enroll.Service) *EnrollHandler {
	return &EnrollHandler{Service: svc}
}

type enrollResponse struct {
	EmployeeID   uuid.UUID `json:"employee_id"`
	FaceID       uuid.UUID `json:"face_id"`
	QualityScore float64   `json:"quality_score"`
	Model        string    `json:"model"`
}

// Enroll handles POST /api/enroll_face (multipart: employee_id, images[]).
func (h *EnrollHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxEnrollUploadBytes); err != nil {
		respondErr(w, apierr.FromCode("BAD_REQUEST", "could not parse multipart form"))
		return
	}

	employeeID, err := uuid.Parse(r.FormValue("employee_id"))
	if err != nil {
		respondErr(w, apierr.FromCode("BAD_REQUEST", "invalid employee_id"))
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		respondErr(w, apierr.FromCode("BAD_REQUEST", "images[] must contain 1-10 images"))
		return
	}

	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			respondErr(w, apierr.FromCode("BAD_REQUEST", "could not read uploaded image"))
			return
		}
		b, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			respondErr(w, apierr.FromCode("BAD_REQUEST", "could not read uploaded image"))
			return
		}
		images = append(images, b)
	}

	result, err := h.Service.Enroll(r.Context(), employeeID, images)
	if err != nil {
		respondErr(w, err)
		return
	}

	respondData(w, http.StatusOK, enrollResponse{
		EmployeeID:   result.EmployeeID,
		FaceID:       result.FaceID,
		QualityScore: result.QualityScore,
		Model:        result.Model,
	})
}
