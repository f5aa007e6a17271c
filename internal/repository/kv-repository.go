package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/SundayYogurt/clearance_service/internal/domain"
	"github.com/SundayYogurt/clearance_service/internal/helper/utils"
	"github.com/SundayYogurt/clearance_service/internal/interfaces"
	"github.com/google/uuid"
)

// Keys used by the key-value driver. Students live in one JSON array and
// settings in one JSON object.
const (
	StudentsKey = "uni_portal_students"
	SettingsKey = "uni_portal_settings"
	AuditKey    = "uni_portal_audit"

	maxAuditEntries = 500
)

type kvStudentRepository struct {
	kv  interfaces.KeyValue
	now func() time.Time
}

func NewKVStudentProfileRepository(kv interfaces.KeyValue) StudentProfileRepository {
	return &kvStudentRepository{kv: kv, now: time.Now}
}

func decodeProfiles(b []byte) ([]domain.StudentProfile, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var list []domain.StudentProfile
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *kvStudentRepository) load(ctx context.Context) ([]domain.StudentProfile, error) {
	b, err := r.kv.Get(ctx, StudentsKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeProfiles(b)
}

func (r *kvStudentRepository) Upsert(ctx context.Context, profile *domain.StudentProfile) error {
	if profile == nil {
		return errors.New("nil profile")
	}
	profile.Email = utils.NormalizeEmail(profile.Email)
	if profile.Email == "" {
		return errors.New("profile email is required")
	}

	var stored domain.StudentProfile
	err := r.kv.Update(ctx, StudentsKey, 0, func(current []byte) ([]byte, error) {
		list, err := decodeProfiles(current)
		if err != nil {
			return nil, err
		}

		now := r.now()
		idx := -1
		for i := range list {
			if list[i].Email == profile.Email {
				idx = i
				break
			}
		}

		if idx >= 0 {
			stored = list[idx].Merge(*profile)
			stored.UpdatedAt = now
			list[idx] = stored
		} else {
			stored = profile.Clone()
			if stored.ID == "" {
				stored.ID = uuid.NewString()
			}
			if stored.CreatedAt.IsZero() {
				stored.CreatedAt = now
			}
			stored.UpdatedAt = now
			list = append(list, stored)
		}
		return json.Marshal(list)
	})
	if err != nil {
		return err
	}
	*profile = stored
	return nil
}

func (r *kvStudentRepository) FindByEmail(ctx context.Context, email string) (*domain.StudentProfile, error) {
	email = utils.NormalizeEmail(email)
	return r.find(ctx, func(p domain.StudentProfile) bool { return p.Email == email })
}

func (r *kvStudentRepository) FindByID(ctx context.Context, id string) (*domain.StudentProfile, error) {
	return r.find(ctx, func(p domain.StudentProfile) bool { return p.ID == id })
}

func (r *kvStudentRepository) find(ctx context.Context, match func(domain.StudentProfile) bool) (*domain.StudentProfile, error) {
	list, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		if match(p) {
			p.Normalize()
			return &p, nil
		}
	}
	return nil, domain.ErrProfileNotFound
}

func (r *kvStudentRepository) ListAll(ctx context.Context) ([]domain.StudentProfile, error) {
	return r.load(ctx)
}

type kvSettingsRepository struct {
	kv interfaces.KeyValue
}

func NewKVSettingsRepository(kv interfaces.KeyValue) SettingsRepository {
	return &kvSettingsRepository{kv: kv}
}

func (r *kvSettingsRepository) Get(ctx context.Context) (*domain.SystemSettings, error) {
	b, err := r.kv.Get(ctx, SettingsKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, domain.ErrSettingsNotInitialized
	}
	if err != nil {
		return nil, err
	}
	var s domain.SystemSettings
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *kvSettingsRepository) Save(ctx context.Context, settings *domain.SystemSettings) error {
	settings.ID = domain.SettingsID
	settings.UpdatedAt = time.Now()
	b, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, SettingsKey, b, 0)
}

func (r *kvSettingsRepository) EnsureInitialized(ctx context.Context, defaults domain.SystemSettings) (*domain.SystemSettings, error) {
	var out domain.SystemSettings
	err := r.kv.Update(ctx, SettingsKey, 0, func(current []byte) ([]byte, error) {
		if len(current) > 0 {
			if err := json.Unmarshal(current, &out); err != nil {
				return nil, err
			}
			return current, nil
		}
		out = defaults
		out.ID = domain.SettingsID
		out.UpdatedAt = time.Now()
		return json.Marshal(out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type kvAuditRepository struct {
	kv interfaces.KeyValue
}

func NewKVAuditRepository(kv interfaces.KeyValue) AuditRepository {
	return &kvAuditRepository{kv: kv}
}

func (r *kvAuditRepository) Record(ctx context.Context, entry *domain.AuditLog) error {
	return r.kv.Update(ctx, AuditKey, 0, func(current []byte) ([]byte, error) {
		var logs []domain.AuditLog
		if len(current) > 0 {
			if err := json.Unmarshal(current, &logs); err != nil {
				return nil, err
			}
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now()
		}
		entry.ID = uint(len(logs)) + 1
		if n := len(logs); n > 0 {
			entry.ID = logs[n-1].ID + 1
		}
		logs = append(logs, *entry)
		if len(logs) > maxAuditEntries {
			logs = logs[len(logs)-maxAuditEntries:]
		}
		return json.Marshal(logs)
	})
}

func (r *kvAuditRepository) ListRecent(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	b, err := r.kv.Get(ctx, AuditKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var logs []domain.AuditLog
	if err := json.Unmarshal(b, &logs); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	out := make([]domain.AuditLog, 0, limit)
	for i := len(logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, logs[i])
	}
	return out, nil
}
