// Package service holds the business rules between the HTTP layer and
// the repository: validation, document numbering, audit logging.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"tokosera/backend/internal/cache"
	"tokosera/backend/internal/domain"
	"tokosera/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	reports  cache.ReportCache
	cacheTTL time.Duration
	log      zerolog.Logger
}

func New(repo store.Repository, reportCache cache.ReportCache, cacheTTL time.Duration, logger zerolog.Logger) *Service {
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}
	if cacheTTL < time.Second {
		cacheTTL = 30 * time.Second
	}

	return &Service{
		repo:     repo,
		reports:  reportCache,
		cacheTTL: cacheTTL,
		log:      logger,
	}
}

// nextNumber allocates a PREFIX-YYYY-#### document number for the given
// year. The repository serializes the underlying counter, so the number
// is unique even under concurrent writers.
func (s *Service) nextNumber(ctx context.Context, docType string, prefix string, at time.Time) (string, error) {
	year := at.UTC().Year()
	n, err := s.repo.NextDocumentNumber(ctx, docType, year)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, year, n), nil
}

// nextSKU allocates the next PRD-##### product code. SKUs are a single
// global sequence, so the counter year is pinned to zero.
func (s *Service) nextSKU(ctx context.Context) (string, error) {
	n, err := s.repo.NextDocumentNumber(ctx, "sku", 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PRD-%05d", n), nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.log.Warn().Err(err).Str("action", action).Str("entity", entityType+"/"+entityID).Msg("audit log write failed")
	}
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.reports.Invalidate(ctx, "reports:"); err != nil {
		s.log.Warn().Err(err).Msg("report cache invalidation failed")
	}
}

func requireRole(ctx context.Context, minRole string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: no actor in context", store.ErrInvalidInput)
	}
	if domain.RoleLevel(actor.Role) < domain.RoleLevel(minRole) {
		return fmt.Errorf("%s role required", minRole)
	}
	return nil
}

func requirePermission(ctx context.Context, key string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: no actor in context", store.ErrInvalidInput)
	}
	if !domain.HasPermission(actor.Role, key) {
		return fmt.Errorf("%s permission required", key)
	}
	return nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserAccount, error) {
	if err := requirePermission(ctx, domain.PermUsersManage); err != nil {
		return domain.UserAccount{}, err
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.FullName = strings.TrimSpace(req.FullName)
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))

	if req.Username == "" || req.FullName == "" {
		return domain.UserAccount{}, store.ErrInvalidInput
	}
	if domain.RoleLevel(req.Role) == 0 {
		return domain.UserAccount{}, store.ErrInvalidInput
	}
	if len(req.Password) < 8 {
		return domain.UserAccount{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserAccount{}, err
	}

	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Username:     req.Username,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.UserAccount{}, err
	}

	s.logAudit(ctx, "user_create", "user", created.Username, "role="+created.Role)
	return *created, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	if err := requirePermission(ctx, domain.PermUsersManage); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

func (s *Service) UpdateUser(ctx context.Context, username string, req domain.UserUpdateRequest) (domain.UserAccount, error) {
	if err := requirePermission(ctx, domain.PermUsersManage); err != nil {
		return domain.UserAccount{}, err
	}

	existing, err := s.repo.GetUserByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return domain.UserAccount{}, err
	}

	updated := *existing
	if req.FullName != nil {
		fullName := strings.TrimSpace(*req.FullName)
		if fullName == "" {
			return domain.UserAccount{}, store.ErrInvalidInput
		}
		updated.FullName = fullName
	}
	if req.Role != nil {
		role := strings.ToLower(strings.TrimSpace(*req.Role))
		if domain.RoleLevel(role) == 0 {
			return domain.UserAccount{}, store.ErrInvalidInput
		}
		updated.Role = role
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if req.Password != nil {
		if len(*req.Password) < 8 {
			return domain.UserAccount{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalidInput)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.UserAccount{}, err
		}
		updated.PasswordHash = string(hash)
	}

	result, err := s.repo.UpdateUser(ctx, updated)
	if err != nil {
		return domain.UserAccount{}, err
	}

	s.logAudit(ctx, "user_update", "user", result.Username, fmt.Sprintf("role=%s,active=%t", result.Role, result.Active))
	return *result, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Barcode = strings.TrimSpace(req.Barcode)
	if req.CostingMethod == "" {
		req.CostingMethod = domain.CostingFIFO
	}

	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.PriceCents < 1 || req.CostCents < 0 || req.ReorderLevel < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	switch req.CostingMethod {
	case domain.CostingFIFO, domain.CostingAVCO, domain.CostingStandard:
	default:
		return domain.Product{}, fmt.Errorf("%w: unknown costing method %q", store.ErrInvalidInput, req.CostingMethod)
	}

	sku, err := s.nextSKU(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:           sku,
		Barcode:       req.Barcode,
		Name:          req.Name,
		Category:      req.Category,
		PriceCents:    req.PriceCents,
		CostCents:     req.CostCents,
		CostingMethod: req.CostingMethod,
		ReorderLevel:  req.ReorderLevel,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Product{}, fmt.Errorf("%w: SKU, barcode, or name already in use by an active product", store.ErrConflict)
		}
		return domain.Product{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "product_create", "product", created.SKU, fmt.Sprintf("name=%s,price=%d", created.Name, created.PriceCents))
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context, search string, includeInactive bool, limit int) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, search, includeInactive, limit)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.CostCents = *req.CostCents
	}
	if req.CostingMethod != nil {
		switch *req.CostingMethod {
		case domain.CostingFIFO, domain.CostingAVCO, domain.CostingStandard:
			updated.CostingMethod = *req.CostingMethod
		default:
			return domain.Product{}, store.ErrInvalidInput
		}
	}
	if req.ReorderLevel != nil {
		if *req.ReorderLevel < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.ReorderLevel = *req.ReorderLevel
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	result, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "product_update", "product", result.SKU, fmt.Sprintf("active=%t,price=%d", result.Active, result.PriceCents))
	return *result, nil
}

// DeactivateProduct is the soft delete behind DELETE /api/products/{id}.
func (s *Service) DeactivateProduct(ctx context.Context, id string) (domain.Product, error) {
	inactive := false
	return s.UpdateProduct(ctx, id, domain.ProductUpdateRequest{Active: &inactive})
}

const settingsCacheKey = "settings:v1"

func (s *Service) GetSettings(ctx context.Context) (domain.SystemSettings, error) {
	if payload, hit, err := s.reports.Get(ctx, settingsCacheKey); err == nil && hit {
		var cached domain.SystemSettings
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.SystemSettings{}, err
	}

	if payload, err := json.Marshal(settings); err == nil {
		if err := s.reports.Set(ctx, settingsCacheKey, payload, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("key", settingsCacheKey).Msg("settings cache write failed")
		}
	}
	return *settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, settings domain.SystemSettings) (domain.SystemSettings, error) {
	if err := requirePermission(ctx, domain.PermSettingsWrite); err != nil {
		return domain.SystemSettings{}, err
	}

	settings.StoreName = strings.TrimSpace(settings.StoreName)
	settings.CurrencyCode = strings.ToUpper(strings.TrimSpace(settings.CurrencyCode))
	if settings.StoreName == "" || settings.CurrencyCode == "" {
		return domain.SystemSettings{}, store.ErrInvalidInput
	}
	if settings.DefaultTaxRatePct < 0 || settings.DefaultTaxRatePct > 100 {
		return domain.SystemSettings{}, store.ErrInvalidInput
	}
	if settings.LowStockThreshold < 0 {
		return domain.SystemSettings{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateSettings(ctx, settings)
	if err != nil {
		return domain.SystemSettings{}, err
	}

	if err := s.reports.Invalidate(ctx, settingsCacheKey); err != nil {
		s.log.Warn().Err(err).Str("key", settingsCacheKey).Msg("settings cache invalidation failed")
	}
	s.invalidateReports(ctx)
	s.logAudit(ctx, "settings_update", "settings", "system", "store="+updated.StoreName)
	return *updated, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireRole(ctx, domain.RoleManager); err != nil {
		return nil, err
	}

	from, to, err := dayRange(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// dayRange parses a YYYY-MM-DD date into its UTC [from, to) window.
// Empty input means today.
func dayRange(date string) (time.Time, time.Time, error) {
	day := time.Now().UTC()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid date %q", store.ErrInvalidInput, date)
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.Add(24 * time.Hour), nil
}
