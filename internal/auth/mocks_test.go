package auth

import (
	"context"
	"time"

	"github.com/hitoshi/playscore/internal/metrics"
	"github.com/hitoshi/playscore/internal/model"
	"github.com/hitoshi/playscore/internal/repository"
)

// --- モック定義 ---

type mockAccountRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.Account, error)
	findByEmailFn        func(ctx context.Context, email string) (*model.Account, error)
	createWithIdentityFn func(ctx context.Context, account *model.Account, identity *model.LinkedIdentity) error
	updateAvatarFn       func(ctx context.Context, accountID string, data []byte, mime string) error
	deleteByIDFn         func(ctx context.Context, id string) error
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockAccountRepo) CreateWithIdentity(ctx context.Context, account *model.Account, identity *model.LinkedIdentity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, account, identity)
	}
	return nil
}

func (m *mockAccountRepo) UpdateAvatar(ctx context.Context, accountID string, data []byte, mime string) error {
	if m.updateAvatarFn != nil {
		return m.updateAvatarFn(ctx, accountID, data, mime)
	}
	return nil
}

func (m *mockAccountRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockIdentityRepo struct {
	findByProviderFn func(ctx context.Context, provider model.Provider, providerUserID string) (*model.LinkedIdentity, error)
	listFn           func(ctx context.Context, accountID string) ([]*model.LinkedIdentity, error)
	linkFn           func(ctx context.Context, identity *model.LinkedIdentity) error
	updateTokensFn   func(ctx context.Context, identity *model.LinkedIdentity) error
	detachFn         func(ctx context.Context, accountID, identityID string) error
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider model.Provider, providerUserID string) (*model.LinkedIdentity, error) {
	if m.findByProviderFn != nil {
		return m.findByProviderFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

func (m *mockIdentityRepo) ListByAccountID(ctx context.Context, accountID string) ([]*model.LinkedIdentity, error) {
	if m.listFn != nil {
		return m.listFn(ctx, accountID)
	}
	return nil, nil
}

func (m *mockIdentityRepo) Link(ctx context.Context, identity *model.LinkedIdentity) error {
	if m.linkFn != nil {
		return m.linkFn(ctx, identity)
	}
	return nil
}

func (m *mockIdentityRepo) UpdateTokens(ctx context.Context, identity *model.LinkedIdentity) error {
	if m.updateTokensFn != nil {
		return m.updateTokensFn(ctx, identity)
	}
	return nil
}

func (m *mockIdentityRepo) DetachFromAccount(ctx context.Context, accountID, identityID string) error {
	if m.detachFn != nil {
		return m.detachFn(ctx, accountID, identityID)
	}
	return nil
}

type mockSessionRepo struct {
	createFn            func(ctx context.Context, session *model.Session) error
	findByIDFn          func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn        func(ctx context.Context, id string) error
	deleteByAccountIDFn func(ctx context.Context, accountID string) error
	deleteOlderThanFn   func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByAccountID(ctx context.Context, accountID string) error {
	if m.deleteByAccountIDFn != nil {
		return m.deleteByAccountIDFn(ctx, accountID)
	}
	return nil
}

func (m *mockSessionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.deleteOlderThanFn != nil {
		return m.deleteOlderThanFn(ctx, cutoff)
	}
	return 0, nil
}

// nopCollector は記録を捨てるメトリクスコレクター。
type nopCollector struct{}

func (nopCollector) RecordLogin(provider string, outcome string) {}
func (nopCollector) RecordSessionValidation(result string) {}
func (nopCollector) RecordSessionsCleaned(count int64) {}
func (nopCollector) RecordAvatarFetchFailure() {}
func (nopCollector) RecordCallbackLatency(duration time.Duration) {}

// --- compile-time interface checks ---
var _ repository.AccountRepository = (*mockAccountRepo)(nil)
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ metrics.MetricsCollector = nopCollector{}
