package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/playscore/internal/model"
	"github.com/hitoshi/playscore/internal/repository"
)

// Service はアカウント管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	accountRepo repository.AccountRepository
	sessionRepo repository.SessionRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(accountRepo repository.AccountRepository, sessionRepo repository.SessionRepository) *Service {
	return &Service{
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
	}
}

// Get は指定IDのアカウントを取得する。
func (s *Service) Get(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError()
	}
	return account, nil
}

// Withdraw はアカウントの退会処理を実行する。
// 削除順序: sessions → account（identitiesはCASCADE削除）。
// 最後の連携を解除できない制約は退会には適用されない。
// 退会はアカウントそのものを消す明示的なフローであり、ロックアウトとは別物。
func (s *Service) Withdraw(ctx context.Context, accountID string) error {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return model.NewAccountNotFoundError()
	}

	slog.Info("account withdrawal started",
		slog.String("account_id", accountID),
	)

	// 1. 全デバイスのセッションを破棄
	if err := s.sessionRepo.DeleteByAccountID(ctx, accountID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}

	// 2. アカウントを削除（identitiesはCASCADE削除）
	if err := s.accountRepo.DeleteByID(ctx, accountID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	slog.Info("account withdrawal completed",
		slog.String("account_id", accountID),
	)

	return nil
}
