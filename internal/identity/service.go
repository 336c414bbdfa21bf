// Package identity は連携管理（一覧・解除）のドメインロジックを提供する。
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/playscore/internal/model"
	"github.com/hitoshi/playscore/internal/repository"
)

// Service は連携管理のサービス層。
// 操作は必ず認証済みアカウントのスコープ内で行われる。
type Service struct {
	identityRepo repository.IdentityRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(identityRepo repository.IdentityRepository) *Service {
	return &Service{identityRepo: identityRepo}
}

// List は呼び出し元アカウントの連携一覧を返す。
// 他アカウントの連携は一切見えない。
func (s *Service) List(ctx context.Context, accountID string) ([]*model.LinkedIdentity, error) {
	identities, err := s.identityRepo.ListByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	return identities, nil
}

// Detach は呼び出し元アカウントの連携を1件解除する。
// アカウントに属さないIDは存在を漏らさないためIDENTITY_NOT_FOUNDとして扱う。
// 最後の1件はLAST_IDENTITYで拒否する。アクティブなセッションには影響しない。
func (s *Service) Detach(ctx context.Context, accountID, identityID string) error {
	if identityID == "" {
		return model.NewIdentityNotFoundError()
	}

	err := s.identityRepo.DetachFromAccount(ctx, accountID, identityID)
	if err == nil {
		slog.Info("identity detached",
			slog.String("account_id", accountID),
			slog.String("identity_id", identityID),
		)
		return nil
	}

	if errors.Is(err, repository.ErrIdentityNotFound) {
		return model.NewIdentityNotFoundError()
	}
	if errors.Is(err, repository.ErrLastIdentity) {
		slog.Warn("refused to detach last identity",
			slog.String("account_id", accountID),
		)
		return model.NewLastIdentityError()
	}

	return fmt.Errorf("failed to detach identity: %w", err)
}
