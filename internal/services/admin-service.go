package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/SundayYogurt/clearance_service/internal/domain"
	"github.com/SundayYogurt/clearance_service/internal/dto"
	"github.com/SundayYogurt/clearance_service/internal/helper"
	"github.com/SundayYogurt/clearance_service/internal/interfaces"
	"github.com/SundayYogurt/clearance_service/internal/repository"
	"github.com/SundayYogurt/clearance_service/internal/workflow"
)

const (
	revokedKeyPrefix = "admin:revoked:"
	recentLimit      = 5
)

var (
	ErrInvalidAccessKey = errors.New("invalid access key")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidSettings  = errors.New("invalid settings")
)

var (
	sessionYearPattern = regexp.MustCompile(`^(\d{4})/(\d{4})$`)
	currencyPattern    = regexp.MustCompile(`^[A-Z]{3}$`)
)

type AdminService interface {
	// Auth
	Login(ctx context.Context, accessKey string) (*dto.AdminLoginResponse, error)
	Logout(ctx context.Context, session helper.AdminSession) error
	Authorize(ctx context.Context, token string) (helper.AdminSession, error)

	// Views
	Dashboard(ctx context.Context) (*dto.DashboardResponse, error)
	ListStudents(ctx context.Context, search string) (*dto.StudentListResponse, error)
	GetStudent(ctx context.Context, id string) (*domain.StudentProfile, error)
	ExportStudent(ctx context.Context, id string) (string, error)
	AuditTrail(ctx context.Context, limit int) ([]domain.AuditLog, error)

	// Settings
	GetSettings(ctx context.Context) (*domain.SystemSettings, error)
	UpdateSettings(ctx context.Context, input dto.UpdateSettingsRequest) (*domain.SystemSettings, error)
}

type adminService struct {
	auth         helper.Auth
	kv           interfaces.KeyValue
	studentRepo  repository.StudentProfileRepository
	settingsRepo repository.SettingsRepository
	auditRepo    repository.AuditRepository
	gateway      workflow.PaymentGateway
}

func NewAdminService(
	auth helper.Auth,
	kv interfaces.KeyValue,
	studentRepo repository.StudentProfileRepository,
	settingsRepo repository.SettingsRepository,
	auditRepo repository.AuditRepository,
	gateway workflow.PaymentGateway,
) AdminService {
	return &adminService{
		auth:         auth,
		kv:           kv,
		studentRepo:  studentRepo,
		settingsRepo: settingsRepo,
		auditRepo:    auditRepo,
		gateway:      gateway,
	}
}

// AUTH
func (a *adminService) Login(ctx context.Context, accessKey string) (*dto.AdminLoginResponse, error) {
	if err := a.auth.CheckAccessKey(accessKey); err != nil {
		log.Println("[ADMIN] login rejected")
		return nil, ErrInvalidAccessKey
	}

	token, session, err := a.auth.GenerateToken()
	if err != nil {
		return nil, err
	}
	a.audit(ctx, domain.AuditAdminLogin, session.ID, "")

	return &dto.AdminLoginResponse{Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// Logout revokes the session until its natural expiry.
func (a *adminService) Logout(ctx context.Context, session helper.AdminSession) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return a.kv.Set(ctx, revokedKeyPrefix+session.ID, []byte("1"), ttl)
}

func (a *adminService) Authorize(ctx context.Context, token string) (helper.AdminSession, error) {
	session, err := a.auth.VerifyToken(token)
	if err != nil {
		return helper.AdminSession{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	_, err = a.kv.Get(ctx, revokedKeyPrefix+session.ID)
	switch {
	case err == nil:
		return helper.AdminSession{}, fmt.Errorf("%w: session revoked", ErrUnauthorized)
	case errors.Is(err, interfaces.ErrKeyNotFound):
		return session, nil
	default:
		return helper.AdminSession{}, err
	}
}

// VIEWS
func (a *adminService) Dashboard(ctx context.Context) (*dto.DashboardResponse, error) {
	settings, err := a.settingsRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	students, err := a.studentRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	out := &dto.DashboardResponse{
		SessionYear:   settings.SessionYear,
		TotalStudents: len(students),
		Currency:      settings.Currency,
		Recent:        []dto.StudentSummary{},
	}
	for _, s := range students {
		if s.IsPaid() {
			out.PaidStudents++
		}
		if s.IsSubmitted() {
			out.SubmittedStudents++
		}
	}
	out.Revenue = int64(out.PaidStudents) * settings.ClearanceFee

	for i := len(students) - 1; i >= 0 && len(out.Recent) < recentLimit; i-- {
		out.Recent = append(out.Recent, dto.NewStudentSummary(students[i]))
	}
	return out, nil
}

// ListStudents returns newest first, filtered by a case-insensitive match on
// surname, first name, JAMB registration number or email.
func (a *adminService) ListStudents(ctx context.Context, search string) (*dto.StudentListResponse, error) {
	students, err := a.studentRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(search))
	out := &dto.StudentListResponse{Students: []dto.StudentSummary{}}
	for i := len(students) - 1; i >= 0; i-- {
		s := students[i]
		if q != "" && !matchesStudent(s, q) {
			continue
		}
		out.Students = append(out.Students, dto.NewStudentSummary(s))
	}
	out.Total = len(out.Students)
	return out, nil
}

func matchesStudent(s domain.StudentProfile, q string) bool {
	for _, v := range []string{s.Surname, s.FirstName, s.JambRegNumber, s.Email} {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

func (a *adminService) GetStudent(ctx context.Context, id string) (*domain.StudentProfile, error) {
	return a.studentRepo.FindByID(ctx, strings.TrimSpace(id))
}

func (a *adminService) ExportStudent(ctx context.Context, id string) (string, error) {
	p, err := a.GetStudent(ctx, id)
	if err != nil {
		return "", err
	}
	return ExportProfile(*p)
}

func (a *adminService) AuditTrail(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if a.auditRepo == nil {
		return []domain.AuditLog{}, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return a.auditRepo.ListRecent(ctx, limit)
}

// SETTINGS
func (a *adminService) GetSettings(ctx context.Context) (*domain.SystemSettings, error) {
	return a.settingsRepo.Get(ctx)
}

func (a *adminService) UpdateSettings(ctx context.Context, input dto.UpdateSettingsRequest) (*domain.SystemSettings, error) {
	if err := checkSessionYear(input.SessionYear); err != nil {
		return nil, err
	}
	if input.ClearanceFee <= 0 {
		return nil, fmt.Errorf("%w: clearance fee must be greater than zero", ErrInvalidSettings)
	}
	if _, err := time.Parse("2006-01-02", input.PaymentDeadline); err != nil {
		return nil, fmt.Errorf("%w: payment deadline must be YYYY-MM-DD", ErrInvalidSettings)
	}

	current, err := a.settingsRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = current.Currency
	}
	if currency == "" {
		currency = "NGN"
	}
	if !currencyPattern.MatchString(currency) {
		return nil, fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrInvalidSettings)
	}
	if a.gateway != nil && !a.gateway.Supports(currency) {
		return nil, fmt.Errorf("%w: the payment gateway cannot charge in %s", ErrInvalidSettings, currency)
	}

	current.SessionYear = input.SessionYear
	current.ClearanceFee = input.ClearanceFee
	current.PaymentDeadline = input.PaymentDeadline
	current.GatewayPublicKey = strings.TrimSpace(input.GatewayPublicKey)
	current.PaymentsEnabled = input.PaymentsEnabled
	current.SubmissionsEnabled = input.SubmissionsEnabled
	current.Currency = currency

	if err := a.settingsRepo.Save(ctx, current); err != nil {
		return nil, err
	}
	a.audit(ctx, domain.AuditSettingsUpdated, "1",
		fmt.Sprintf("fee=%d %s payments=%t submissions=%t", current.ClearanceFee, current.Currency, current.PaymentsEnabled, current.SubmissionsEnabled))
	return current, nil
}

func checkSessionYear(v string) error {
	m := sessionYearPattern.FindStringSubmatch(v)
	if m == nil {
		return fmt.Errorf("%w: session year must look like 2025/2026", ErrInvalidSettings)
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	if end != start+1 {
		return fmt.Errorf("%w: session year must span consecutive years", ErrInvalidSettings)
	}
	return nil
}

func (a *adminService) audit(ctx context.Context, action, entityID, note string) {
	if a.auditRepo == nil {
		return
	}
	entry := &domain.AuditLog{Actor: "admin", Action: action, Entity: "system_settings", EntityID: entityID}
	if action == domain.AuditAdminLogin {
		entry.Entity = "admin_session"
	}
	if note != "" {
		entry.Note = &note
	}
	if err := a.auditRepo.Record(ctx, entry); err != nil {
		log.Printf("[ADMIN] audit %s error: %v", action, err)
	}
}
