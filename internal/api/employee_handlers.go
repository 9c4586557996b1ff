package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/canteen-authz/internal/apierr"
	"github.com/technosupport/canteen-authz/internal/data"
	"github.com/technosupport/canteen-authz/internal/domain"
)

type cardGetter interface {
	GetByUID(ctx context.Context, uid string) (*domain.Card, error)
}

type employeeGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Employee, error)
}

type templateGetter interface {
	GetActiveByEmployee(ctx context.Context, employeeID uuid.UUID) (*domain.FaceTemplate, error)
}

type dailyGetter interface {
	GetDaily(ctx context.Context, employeeID uuid.UUID, date time.Time) (*domain.DailySubsidyBalance, error)
}

type monthlyGetter interface {
	GetMonthly(ctx context.Context, employeeID uuid.UUID, year, month, limitCentsIfAbsent int) (*domain.MonthlyBalance, error)
}

// calendarOracle mirrors internal/payment's consumer-defined interface so
// employee_info computes eligibility the same way Pay does.
type calendarOracle interface {
	CompanyWorkday(date time.Time) bool
	EmployeeWorking(ctx context.Context, employeeID uuid.UUID, date time.Time) (bool, error)
}

// EmployeeInfoHandler serves GET /api/employee_info: a read-only snapshot
// a cashier UI shows before starting a liveness challenge.
type EmployeeInfoHandler struct {
	Cards     cardGetter
	Employees employeeGetter
	Templates templateGetter
	Daily     dailyGetter
	Monthly   monthlyGetter
	Calendar  calendarOracle

	DailySubsidyLimitCents int
	Loc                    *time.Location
}

type employeeInfoResponse struct {
	EmployeeID             uuid.UUID `json:"employee_id"`
	FullName               string    `json:"full_name"`
	EmployeeType           string    `json:"employee_type"`
	Status                 string    `json:"status"`
	PhotoBase64            string    `json:"photo_base64,omitempty"`
	SubsidyTodayLeftCents  int       `json:"subsidy_today_left_cents"`
	MonthlyLeftCents       int       `json:"monthly_left_cents"`
	NeedsFaceEnrollment    bool      `json:"needs_face_enrollment"`
}

func (h *EmployeeInfoHandler) Get(w http.ResponseWriter, r *http.Request) {
	cardUID := r.URL.Query().Get("card_uid")
	if cardUID == "" {
		respondErr(w, apierr.FromCode("BAD_REQUEST", "card_uid is required"))
		return
	}

	ctx := r.Context()
	card, err := h.Cards.GetByUID(ctx, cardUID)
	if errors.Is(err, data.ErrRecordNotFound) {
		respondErr(w, apierr.FromCode("CARD_NOT_FOUND", "card not found"))
		return
	}
	if err != nil {
		respondErr(w, err)
		return
	}

	employee, err := h.Employees.GetByID(ctx, card.EmployeeID)
	if errors.Is(err, data.ErrRecordNotFound) {
		respondErr(w, apierr.FromCode("EMPLOYEE_BLOCKED", "employee not found"))
		return
	}
	if err != nil {
		respondErr(w, err)
		return
	}

	needsEnrollment := false
	if _, err := h.Templates.GetActiveByEmployee(ctx, employee.ID); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			needsEnrollment = true
		} else {
			respondErr(w, err)
			return
		}
	}

	loc := h.Loc
	if loc == nil {
		loc = time.UTC
	}
	today := time.Now().In(loc)
	year, month, _ := today.Date()

	eligible := employee.Kind == domain.EmployeeWorker && h.Calendar.CompanyWorkday(today)
	if eligible {
		working, err := h.Calendar.EmployeeWorking(ctx, employee.ID, today)
		if err != nil {
			respondErr(w, err)
			return
		}
		eligible = working
	}

	daily, err := h.Daily.GetDaily(ctx, employee.ID, today)
	if err != nil {
		respondErr(w, err)
		return
	}
	monthly, err := h.Monthly.GetMonthly(ctx, employee.ID, year, int(month), employee.MonthlyLimitCents)
	if err != nil {
		respondErr(w, err)
		return
	}

	subsidyLeft := 0
	if eligible {
		subsidyLeft = h.DailySubsidyLimitCents - daily.UsedCents
		if subsidyLeft < 0 {
			subsidyLeft = 0
		}
	}
	monthlyLeft := monthly.LimitCents - monthly.UsedCents
	if monthlyLeft < 0 {
		monthlyLeft = 0
	}

	resp := employeeInfoResponse{
		EmployeeID:            employee.ID,
		FullName:              employee.FullName,
		EmployeeType:          string(employee.Kind),
		Status:                string(employee.Status),
		SubsidyTodayLeftCents: subsidyLeft,
		MonthlyLeftCents:      monthlyLeft,
		NeedsFaceEnrollment:   needsEnrollment,
	}
	if len(employee.PhotoJPEG) > 0 {
		resp.PhotoBase64 = base64.StdEncoding.EncodeToString(employee.PhotoJPEG)
	}

	respondData(w, http.StatusOK, resp)
}
